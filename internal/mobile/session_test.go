// File: internal/mobile/session_test.go
package mobile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/gauntlet-cli/internal/mobile/wire"
)

const noSuchElementBody = `{"value":{"error":"no such element","message":"unable to locate element"}}`

func newSessionForTest(t *testing.T, handler http.Handler) *Session {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := wire.NewClient(server.URL, 5*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)

	info := &wire.SessionInfo{
		ID: "s1",
		Capabilities: map[string]any{
			"platformName":           "Android",
			"appium:platformVersion": "13",
			"appium:deviceName":      "Pixel 7",
			"appium:automationName":  "UiAutomator2",
			"appium:appPackage":      "com.example.app",
		},
	}
	return newSession(client, info, testSettings(server.URL), zaptest.NewLogger(t))
}

func TestSessionTap(t *testing.T) {
	var mu sync.Mutex
	var clicked bool
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s1/element":
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Equal(t, "id", gjson.GetBytes(body, "using").String())
			assert.Equal(t, "login_button", gjson.GetBytes(body, "value").String())
			fmt.Fprint(w, `{"value":{"element-6066-11e4-a52e-4f735466cecf":"el-1"}}`)
		case "/session/s1/element/el-1/click":
			mu.Lock()
			clicked = true
			mu.Unlock()
			fmt.Fprint(w, `{"value":null}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	require.NoError(t, session.Tap(context.Background(), "id=login_button"))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, clicked)
}

func TestSessionSendKeysClearsFirst(t *testing.T) {
	var mu sync.Mutex
	var order []string
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s1/element":
			fmt.Fprint(w, `{"value":{"ELEMENT":"el-1"}}`)
		case "/session/s1/element/el-1/clear":
			mu.Lock()
			order = append(order, "clear")
			mu.Unlock()
			fmt.Fprint(w, `{"value":null}`)
		case "/session/s1/element/el-1/value":
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Equal(t, "standard_user", gjson.GetBytes(body, "text").String())
			mu.Lock()
			order = append(order, "value")
			mu.Unlock()
			fmt.Fprint(w, `{"value":null}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	require.NoError(t, session.SendKeys(context.Background(), "id=username", "standard_user"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"clear", "value"}, order)
}

func TestSessionTextFallsBackToAttribute(t *testing.T) {
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s1/element":
			fmt.Fprint(w, `{"value":{"ELEMENT":"el-1"}}`)
		case "/session/s1/element/el-1/text":
			fmt.Fprint(w, `{"value":""}`)
		case "/session/s1/element/el-1/attribute/text":
			fmt.Fprint(w, `{"value":"Submit"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	text, err := session.Text(context.Background(), "id=submit")
	require.NoError(t, err)
	assert.Equal(t, "Submit", text)
}

func TestSessionIsDisplayed(t *testing.T) {
	t.Run("missing element is not displayed", func(t *testing.T) {
		session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, noSuchElementBody)
		}))

		visible, err := session.IsDisplayed(context.Background(), "id=ghost")
		require.NoError(t, err)
		assert.False(t, visible)
	})

	t.Run("present element reports visibility", func(t *testing.T) {
		session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/session/s1/element":
				fmt.Fprint(w, `{"value":{"ELEMENT":"el-1"}}`)
			case "/session/s1/element/el-1/displayed":
				fmt.Fprint(w, `{"value":true}`)
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))

		visible, err := session.IsDisplayed(context.Background(), "id=banner")
		require.NoError(t, err)
		assert.True(t, visible)
	})
}

func TestSessionSwipeBuildsPointerSequence(t *testing.T) {
	var mu sync.Mutex
	var captured []byte
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/session/s1/actions", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mu.Lock()
		captured = body
		mu.Unlock()
		fmt.Fprint(w, `{"value":null}`)
	}))

	require.NoError(t, session.Swipe(context.Background(), 540, 1536, 540, 384, 250*time.Millisecond))

	mu.Lock()
	payload := gjson.ParseBytes(captured)
	mu.Unlock()

	steps := payload.Get("actions.0.actions").Array()
	require.Len(t, steps, 4)
	assert.Equal(t, "pointerMove", steps[0].Get("type").String())
	assert.Equal(t, int64(540), steps[0].Get("x").Int())
	assert.Equal(t, int64(1536), steps[0].Get("y").Int())
	assert.Equal(t, "pointerDown", steps[1].Get("type").String())
	assert.Equal(t, "pointerMove", steps[2].Get("type").String())
	assert.Equal(t, int64(384), steps[2].Get("y").Int())
	assert.Equal(t, int64(250), steps[2].Get("duration").Int())
	assert.Equal(t, "pointerUp", steps[3].Get("type").String())
}

func TestSessionLongPressHoldsElementCenter(t *testing.T) {
	var mu sync.Mutex
	var captured []byte
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s1/element":
			fmt.Fprint(w, `{"value":{"ELEMENT":"el-1"}}`)
		case "/session/s1/element/el-1/rect":
			fmt.Fprint(w, `{"value":{"x":10,"y":20,"width":100,"height":50}}`)
		case "/session/s1/actions":
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			mu.Lock()
			captured = body
			mu.Unlock()
			fmt.Fprint(w, `{"value":null}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	require.NoError(t, session.LongPress(context.Background(), "id=item", 0))

	mu.Lock()
	payload := gjson.ParseBytes(captured)
	mu.Unlock()

	steps := payload.Get("actions.0.actions").Array()
	require.Len(t, steps, 4)
	assert.Equal(t, int64(60), steps[0].Get("x").Int())
	assert.Equal(t, int64(45), steps[0].Get("y").Int())
	assert.Equal(t, "pause", steps[2].Get("type").String())
	assert.Equal(t, int64(1000), steps[2].Get("duration").Int())
}

func TestSessionScrollToElement(t *testing.T) {
	var mu sync.Mutex
	var finds, swipes int
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s1/window/rect":
			fmt.Fprint(w, `{"value":{"x":0,"y":0,"width":1080,"height":1920}}`)
		case "/session/s1/element":
			mu.Lock()
			finds++
			found := finds > 2
			mu.Unlock()
			if !found {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, noSuchElementBody)
				return
			}
			fmt.Fprint(w, `{"value":{"ELEMENT":"el-9"}}`)
		case "/session/s1/element/el-9/displayed":
			fmt.Fprint(w, `{"value":true}`)
		case "/session/s1/actions":
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			mu.Lock()
			swipes++
			mu.Unlock()
			first := gjson.GetBytes(body, "actions.0.actions.0")
			assert.Equal(t, int64(540), first.Get("x").Int())
			assert.Equal(t, int64(1536), first.Get("y").Int())
			assert.Equal(t, int64(384), gjson.GetBytes(body, "actions.0.actions.2.y").Int())
			fmt.Fprint(w, `{"value":null}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	require.NoError(t, session.ScrollToElement(context.Background(), "id=footer"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, swipes)
}

func TestSessionScrollToElementGivesUp(t *testing.T) {
	var mu sync.Mutex
	var swipes int
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s1/window/rect":
			fmt.Fprint(w, `{"value":{"x":0,"y":0,"width":1080,"height":1920}}`)
		case "/session/s1/element":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, noSuchElementBody)
		case "/session/s1/actions":
			mu.Lock()
			swipes++
			mu.Unlock()
			fmt.Fprint(w, `{"value":null}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	err := session.ScrollToElement(context.Background(), "id=nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found after 10 swipes")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, swipes)
}

func TestSessionWaitForElement(t *testing.T) {
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":{"ELEMENT":"el-1"}}`)
	}))

	require.NoError(t, session.WaitForElement(context.Background(), "id=ready", time.Second))
}

func TestSessionWaitForElementTimesOut(t *testing.T) {
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, noSuchElementBody)
	}))

	err := session.WaitForElement(context.Background(), "id=never", 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestSessionWaitForVisibleTimesOut(t *testing.T) {
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, noSuchElementBody)
	}))

	err := session.WaitForVisible(context.Background(), "id=never", 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "to be visible")
}

func TestSessionWaitAbortsOnProtocolError(t *testing.T) {
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"value":{"error":"invalid session id","message":"session deleted"}}`)
	}))

	err := session.WaitForElement(context.Background(), "id=any", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session id")
}

func TestSessionResetApp(t *testing.T) {
	var mu sync.Mutex
	var order []string
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "com.example.app", gjson.GetBytes(body, "appId").String())
		switch r.URL.Path {
		case "/session/s1/appium/device/terminate_app":
			mu.Lock()
			order = append(order, "terminate")
			mu.Unlock()
		case "/session/s1/appium/device/activate_app":
			mu.Lock()
			order = append(order, "activate")
			mu.Unlock()
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"value":null}`)
	}))

	require.NoError(t, session.ResetApp(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"terminate", "activate"}, order)
}

func TestSessionDeviceInfo(t *testing.T) {
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("device info should not touch the server, got %s", r.URL.Path)
	}))

	info, err := session.DeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"platform_name":    "Android",
		"platform_version": "13",
		"device_name":      "Pixel 7",
		"automation_name":  "UiAutomator2",
	}, info)
}

func TestSessionHideKeyboardBestEffort(t *testing.T) {
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"value":{"error":"unknown error","message":"keyboard not present"}}`)
	}))

	assert.NoError(t, session.HideKeyboard(context.Background()))
}

func TestSessionHierarchy(t *testing.T) {
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/session/s1/source", r.URL.Path)
		data, err := json.Marshal(map[string]any{"value": androidSource})
		require.NoError(t, err)
		_, _ = w.Write(data)
	}))

	summary, err := session.Hierarchy(context.Background())
	require.NoError(t, err)

	parsed := gjson.ParseBytes(summary)
	assert.Equal(t, int64(6), parsed.Get("elements").Int())
	assert.Equal(t, int64(4), parsed.Get("max_depth").Int())
	assert.True(t, parsed.Get("classes").IsArray())
	assert.Contains(t, parsed.Get("resource_ids").Raw, "com.example:id/login")
}

func TestSessionContextSwitching(t *testing.T) {
	var mu sync.Mutex
	var switched string
	session := newSessionForTest(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/session/s1/contexts":
			fmt.Fprint(w, `{"value":["NATIVE_APP","WEBVIEW_com.example.app"]}`)
		case r.URL.Path == "/session/s1/context" && r.Method == http.MethodGet:
			fmt.Fprint(w, `{"value":"NATIVE_APP"}`)
		case r.URL.Path == "/session/s1/context" && r.Method == http.MethodPost:
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			mu.Lock()
			switched = gjson.GetBytes(body, "name").String()
			mu.Unlock()
			fmt.Fprint(w, `{"value":null}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	ctx := context.Background()
	contexts, err := session.Contexts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"NATIVE_APP", "WEBVIEW_com.example.app"}, contexts)

	current, err := session.CurrentContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "NATIVE_APP", current)

	require.NoError(t, session.SwitchContext(ctx, "WEBVIEW_com.example.app"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "WEBVIEW_com.example.app", switched)
}
