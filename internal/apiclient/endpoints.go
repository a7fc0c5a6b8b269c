// File: internal/apiclient/endpoints.go
package apiclient

import "net/url"

// Endpoint constants keep the API surface in one place instead of scattering
// path literals through suites.
const (
	EndpointAuthLogin          = "/auth/login"
	EndpointAuthLogout         = "/auth/logout"
	EndpointAuthRegister       = "/auth/register"
	EndpointAuthRefresh        = "/auth/refresh"
	EndpointAuthForgotPassword = "/auth/forgot-password"
	EndpointAuthResetPassword  = "/auth/reset-password"
	EndpointAuthVerifyEmail    = "/auth/verify-email"

	EndpointUsers       = "/users"
	EndpointCurrentUser = "/users/me"

	EndpointPosts    = "/posts"
	EndpointComments = "/comments"

	EndpointFileUpload = "/files/upload"

	EndpointHealth  = "/health"
	EndpointVersion = "/version"
	EndpointConfig  = "/config"
)

// UserEndpoint returns the path for a single user.
func UserEndpoint(userID string) string {
	return EndpointUsers + "/" + url.PathEscape(userID)
}

// UserProfileEndpoint returns the path for a user's profile.
func UserProfileEndpoint(userID string) string {
	return UserEndpoint(userID) + "/profile"
}

// UserAvatarEndpoint returns the path for a user's avatar.
func UserAvatarEndpoint(userID string) string {
	return UserEndpoint(userID) + "/avatar"
}

// PostEndpoint returns the path for a single post.
func PostEndpoint(postID string) string {
	return EndpointPosts + "/" + url.PathEscape(postID)
}

// PostCommentsEndpoint returns the path for a post's comments.
func PostCommentsEndpoint(postID string) string {
	return PostEndpoint(postID) + "/comments"
}

// CommentEndpoint returns the path for a single comment.
func CommentEndpoint(commentID string) string {
	return EndpointComments + "/" + url.PathEscape(commentID)
}

// FileEndpoint returns the path for a stored file.
func FileEndpoint(fileID string) string {
	return "/files/" + url.PathEscape(fileID)
}

// CollectionPath returns the listing path for an arbitrary resource type.
func CollectionPath(resourceType string) string {
	return "/" + url.PathEscape(resourceType)
}

// ResourcePath returns the path for one resource of an arbitrary type.
func ResourcePath(resourceType, resourceID string) string {
	return CollectionPath(resourceType) + "/" + url.PathEscape(resourceID)
}
