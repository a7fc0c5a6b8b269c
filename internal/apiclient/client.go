// File: internal/apiclient/client.go
package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gauntlet-cli/internal/config"
)

// reauthWindow is how close to expiry a JWT may get before the client logs
// in again ahead of an authenticated call.
const reauthWindow = 30 * time.Second

// AuthError reports a failed login attempt.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed with status %d", e.Status)
}

// Client layers business-level operations over a Session: authentication
// with token upkeep, user management, and generic resource CRUD.
type Client struct {
	session *Session
	logger  *zap.Logger

	mu       sync.Mutex
	token    string
	username string
	password string
}

// NewClient builds a client against the configured API base URL.
func NewClient(cfg *config.Settings, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	session, err := NewSession(cfg.Data.API.BaseURL, cfg.Data.Timeouts.APIDuration(), log)
	if err != nil {
		return nil, err
	}
	return &Client{
		session: session,
		logger:  log.Named("api"),
	}, nil
}

// Session exposes the underlying HTTP session for raw calls and assertions.
func (c *Client) Session() *Session {
	return c.session
}

// Authenticate logs in and applies the returned bearer token to every
// subsequent request. The credentials are kept so a token nearing expiry can
// be refreshed without the suite noticing.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*Response, error) {
	c.logger.Info("Authenticating.", zap.String("username", username))
	resp, err := c.session.Post(ctx, EndpointAuthLogin, map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, &AuthError{Status: resp.Status}
	}

	body := resp.JSON()
	token := body.Get("access_token").String()
	if token == "" {
		token = body.Get("token").String()
	}

	c.mu.Lock()
	c.token = token
	c.username = username
	c.password = password
	c.mu.Unlock()

	if token == "" {
		c.logger.Warn("Login response carried no token.")
		return resp, nil
	}
	c.session.SetAuthToken(token)
	c.logger.Info("Authentication succeeded.")
	return resp, nil
}

// refreshIfNeeded re-authenticates when the stored JWT is about to expire.
// Opaque tokens and tokens without an exp claim are left alone.
func (c *Client) refreshIfNeeded(ctx context.Context) error {
	c.mu.Lock()
	token, username, password := c.token, c.username, c.password
	c.mu.Unlock()
	if token == "" || username == "" || !tokenExpiring(token, time.Now()) {
		return nil
	}
	c.logger.Info("Auth token is near expiry; re-authenticating.")
	if _, err := c.Authenticate(ctx, username, password); err != nil {
		return fmt.Errorf("failed to refresh authentication: %w", err)
	}
	return nil
}

// tokenExpiring reports whether the JWT's exp claim falls inside the re-auth
// window. The signature is not verified; only the claim is read.
func tokenExpiring(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return false
	}
	return expiry.Time.Sub(now) < reauthWindow
}

// RegisterUser creates a new account. Extra fields are merged into the
// registration payload.
func (c *Client) RegisterUser(ctx context.Context, username, email, password string, extra map[string]any) (*Response, error) {
	c.logger.Info("Registering user.", zap.String("username", username))
	payload := map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	}
	for key, value := range extra {
		payload[key] = value
	}
	return c.session.Post(ctx, EndpointAuthRegister, payload)
}

// CurrentUser fetches the authenticated user's profile and requires a 200.
func (c *Client) CurrentUser(ctx context.Context) (*Response, error) {
	if err := c.refreshIfNeeded(ctx); err != nil {
		return nil, err
	}
	resp, err := c.session.Get(ctx, EndpointCurrentUser, nil)
	if err != nil {
		return nil, err
	}
	if err := c.session.AssertStatus(http.StatusOK); err != nil {
		return nil, err
	}
	return resp, nil
}

// UpdateUser patches a user's fields.
func (c *Client) UpdateUser(ctx context.Context, userID string, fields map[string]any) (*Response, error) {
	if err := c.refreshIfNeeded(ctx); err != nil {
		return nil, err
	}
	c.logger.Info("Updating user.", zap.String("user_id", userID))
	return c.session.Patch(ctx, UserEndpoint(userID), fields)
}

// DeleteUser removes a user, reporting whether the server accepted the
// deletion.
func (c *Client) DeleteUser(ctx context.Context, userID string) (bool, error) {
	if err := c.refreshIfNeeded(ctx); err != nil {
		return false, err
	}
	c.logger.Info("Deleting user.", zap.String("user_id", userID))
	resp, err := c.session.Delete(ctx, UserEndpoint(userID))
	if err != nil {
		return false, err
	}
	return resp.Status == http.StatusOK || resp.Status == http.StatusNoContent, nil
}

// GetResource fetches one resource by type and id.
func (c *Client) GetResource(ctx context.Context, resourceType, resourceID string) (*Response, error) {
	if err := c.refreshIfNeeded(ctx); err != nil {
		return nil, err
	}
	return c.session.Get(ctx, ResourcePath(resourceType, resourceID), nil)
}

// ListResources fetches a page of resources. Non-positive page and perPage
// fall back to the first page of twenty.
func (c *Client) ListResources(ctx context.Context, resourceType string, page, perPage int, filters url.Values) (*Response, error) {
	if err := c.refreshIfNeeded(ctx); err != nil {
		return nil, err
	}
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	params := url.Values{}
	for key, values := range filters {
		for _, value := range values {
			params.Add(key, value)
		}
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	return c.session.Get(ctx, CollectionPath(resourceType), params)
}

// CreateResource posts a new resource of the given type.
func (c *Client) CreateResource(ctx context.Context, resourceType string, data map[string]any) (*Response, error) {
	if err := c.refreshIfNeeded(ctx); err != nil {
		return nil, err
	}
	return c.session.Post(ctx, CollectionPath(resourceType), data)
}

// UpdateResource replaces a resource of the given type.
func (c *Client) UpdateResource(ctx context.Context, resourceType, resourceID string, data map[string]any) (*Response, error) {
	if err := c.refreshIfNeeded(ctx); err != nil {
		return nil, err
	}
	return c.session.Put(ctx, ResourcePath(resourceType, resourceID), data)
}

// DeleteResource removes a resource, reporting whether the server accepted
// the deletion.
func (c *Client) DeleteResource(ctx context.Context, resourceType, resourceID string) (bool, error) {
	if err := c.refreshIfNeeded(ctx); err != nil {
		return false, err
	}
	resp, err := c.session.Delete(ctx, ResourcePath(resourceType, resourceID))
	if err != nil {
		return false, err
	}
	return resp.Status == http.StatusOK || resp.Status == http.StatusNoContent, nil
}

// HealthCheck verifies the API answers on its health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.session.Get(ctx, EndpointHealth, nil)
	if err != nil {
		return fmt.Errorf("api health check failed: %w", err)
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("api health endpoint returned status %d", resp.Status)
	}
	return nil
}

// IsAuthenticated reports whether a token is stored.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// Token returns the stored auth token, or empty when unauthenticated.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// ClearAuth drops the stored token and credentials and removes the bearer
// header from the session.
func (c *Client) ClearAuth() {
	c.mu.Lock()
	c.token = ""
	c.username = ""
	c.password = ""
	c.mu.Unlock()
	c.session.RemoveHeader("Authorization")
}

// Close releases the underlying session.
func (c *Client) Close() {
	c.session.Close()
}
