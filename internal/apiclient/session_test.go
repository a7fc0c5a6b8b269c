// File: internal/apiclient/session_test.go
package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"
)

func newTestSession(t *testing.T, handler http.Handler) *Session {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	session, err := NewSession(server.URL, 5*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func TestNewSessionValidation(t *testing.T) {
	for _, baseURL := range []string{"", "not a url", "localhost:8080", "/just/a/path"} {
		_, err := NewSession(baseURL, time.Second, zaptest.NewLogger(t))
		assert.Error(t, err, "base url %q", baseURL)
	}

	session, err := NewSession("http://localhost:8080/", time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", session.BaseURL())
}

func TestSessionGetBuildsURL(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me", r.URL.Path)
		assert.Equal(t, "profile", r.URL.Query().Get("expand"))
		fmt.Fprint(w, `{"id":"u1"}`)
	}))

	resp, err := session.Get(context.Background(), "users/me", url.Values{"expand": {"profile"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "u1", resp.JSON().Get("id").String())
}

func TestSessionAbsoluteURLPassthrough(t *testing.T) {
	var mu sync.Mutex
	var hit bool
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hit = true
		mu.Unlock()
		fmt.Fprint(w, `{"pong":true}`)
	}))
	t.Cleanup(other.Close)

	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("base server should not be hit, got %s", r.URL.Path)
	}))

	resp, err := session.Get(context.Background(), other.URL+"/ping", nil)
	require.NoError(t, err)
	assert.True(t, resp.JSON().Get("pong").Bool())

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, hit)
}

func TestSessionDefaultHeaders(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		fmt.Fprint(w, `{}`)
	}))

	_, err := session.Post(context.Background(), "/echo", map[string]string{"k": "v"})
	require.NoError(t, err)
}

func TestSessionAuth(t *testing.T) {
	t.Run("bearer token", func(t *testing.T) {
		session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{}`)
		}))
		session.SetAuthToken("tok-1")

		_, err := session.Get(context.Background(), "/secure", nil)
		require.NoError(t, err)
	})

	t.Run("basic credentials", func(t *testing.T) {
		session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "alice", username)
			assert.Equal(t, "hunter2", password)
			fmt.Fprint(w, `{}`)
		}))
		session.SetBasicAuth("alice", "hunter2")

		_, err := session.Get(context.Background(), "/secure", nil)
		require.NoError(t, err)
	})

	t.Run("bearer wins over basic", func(t *testing.T) {
		session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{}`)
		}))
		session.SetBasicAuth("alice", "hunter2")
		session.SetAuthToken("tok-2")

		_, err := session.Get(context.Background(), "/secure", nil)
		require.NoError(t, err)
	})
}

func TestSessionSetAndRemoveHeader(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("X-Trace"))
		mu.Unlock()
		fmt.Fprint(w, `{}`)
	}))

	ctx := context.Background()
	session.SetHeader("X-Trace", "abc")
	_, err := session.Get(ctx, "/a", nil)
	require.NoError(t, err)

	session.RemoveHeader("X-Trace")
	_, err = session.Get(ctx, "/b", nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"abc", ""}, seen)
}

func TestSessionCookiesPersist(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/set":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			fmt.Fprint(w, `{}`)
		case "/check":
			cookie, err := r.Cookie("sid")
			require.NoError(t, err)
			assert.Equal(t, "abc", cookie.Value)
			fmt.Fprint(w, `{}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	ctx := context.Background()
	_, err := session.Get(ctx, "/set", nil)
	require.NoError(t, err)
	_, err = session.Get(ctx, "/check", nil)
	require.NoError(t, err)
}

func TestSessionDecompressesBrotli(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "application/json")
		writer := brotli.NewWriter(w)
		_, err := writer.Write([]byte(`{"ok":true}`))
		require.NoError(t, err)
		require.NoError(t, writer.Close())
	}))

	resp, err := session.Get(context.Background(), "/compressed", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.True(t, resp.JSON().Get("ok").Bool())
}

func TestSessionAssertStatus(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))

	err := session.AssertStatus(http.StatusOK)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response")

	_, err = session.Get(context.Background(), "/ok", nil)
	require.NoError(t, err)
	assert.NoError(t, session.AssertStatus(http.StatusOK))

	err = session.AssertStatus(http.StatusNotFound)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected status code 404, got 200")
}

func TestSessionAssertJSONField(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"user":{"name":"amy","age":29,"active":true},"nickname":null}`)
	}))

	_, err := session.Get(context.Background(), "/profile", nil)
	require.NoError(t, err)

	assert.NoError(t, session.AssertJSONField("user.name", "amy"))
	assert.NoError(t, session.AssertJSONField("user.age", 29))
	assert.NoError(t, session.AssertJSONField("user.active", true))
	assert.NoError(t, session.AssertJSONField("nickname", nil))

	err = session.AssertJSONField("user.missing", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	err = session.AssertJSONField("user.name", "bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `expected field "user.name" to be bob`)
}

func TestSessionRecordsRedactedSnapshots(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"secret-token","user":{"id":"u1"}}`)
	}))

	_, err := session.Post(context.Background(), "/auth/login", map[string]string{
		"username": "amy",
		"password": "hunter2",
	})
	require.NoError(t, err)

	snapshots := session.DrainSnapshots()
	require.Len(t, snapshots, 2)

	request := snapshots[0]
	assert.Equal(t, "Request - POST /auth/login", request.Name)
	assert.Equal(t, "application/json", request.MediaType)
	requestDoc := gjson.ParseBytes(request.Body)
	assert.Equal(t, "POST", requestDoc.Get("method").String())
	assert.Contains(t, requestDoc.Get("url").String(), "/auth/login")
	assert.Equal(t, "amy", requestDoc.Get("body.username").String())
	assert.Equal(t, "[REDACTED]", requestDoc.Get("body.password").String())

	response := snapshots[1]
	assert.Equal(t, "Response - POST /auth/login", response.Name)
	responseDoc := gjson.ParseBytes(response.Body)
	assert.Equal(t, int64(200), responseDoc.Get("status_code").Int())
	assert.Equal(t, "[REDACTED]", responseDoc.Get("body.access_token").String())
	assert.Equal(t, "u1", responseDoc.Get("body.user.id").String())

	assert.Empty(t, session.DrainSnapshots())
}

func TestSessionUploadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avatar.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))

	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("avatar")
		require.NoError(t, err)
		defer file.Close()
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(content))
		assert.Equal(t, "avatar.png", header.Filename)
		assert.Equal(t, "profile", r.FormValue("kind"))

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"f1"}`)
	}))

	resp, err := session.UploadFile(context.Background(), EndpointFileUpload, path, "avatar", map[string]string{"kind": "profile"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "f1", resp.JSON().Get("id").String())
}

func TestSessionUploadFileDefaultField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		file.Close()
		fmt.Fprint(w, `{}`)
	}))

	_, err := session.UploadFile(context.Background(), EndpointFileUpload, path, "", nil)
	require.NoError(t, err)
}

func TestSessionUploadMissingFile(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be reached")
	}))

	_, err := session.UploadFile(context.Background(), EndpointFileUpload, filepath.Join(t.TempDir(), "absent.bin"), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open upload file")
}

func TestSessionLastJSONInvalidBody(t *testing.T) {
	session := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))

	_, err := session.Get(context.Background(), "/page", nil)
	require.NoError(t, err)
	assert.False(t, session.LastJSON().Exists())

	err = session.AssertJSONField("anything", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}
