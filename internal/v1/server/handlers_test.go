package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/v1/auth"
	"github.com/parlorhq/parlor/internal/v1/config"
	"github.com/parlorhq/parlor/internal/v1/game"
	"github.com/parlorhq/parlor/internal/v1/ratelimit"
	"github.com/parlorhq/parlor/internal/v1/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// waitingLogic blocks in Play until its agents are interrupted; with
// network seats the worker already blocks awaiting the first connection,
// which is what most tests want.
type waitingLogic struct{}

func (waitingLogic) SetAgents([]game.Agent) {}

func (waitingLogic) Play() (game.Summary, error) {
	// Never reached in these tests: the worker blocks awaiting seats and
	// unwinds on interrupt before handing over the agents.
	return game.Summary{}, nil
}

func (waitingLogic) RenderView(viewer *types.SeatID) string {
	return "<div>table</div>"
}

func testConfig() *config.Config {
	return &config.Config{
		CookieSecret:        "0123456789abcdef0123456789abcdef",
		Port:                "8080",
		Environment:         "development",
		GreeterMessage:      "Welcome!",
		ReconnectTimeout:    time.Minute,
		OutboundQueueLen:    16,
		RateLimitLogin:      "1000-M",
		RateLimitCreateRoom: "1000-M",
	}
}

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	registry := game.NewRegistry()
	registry.Register("test", func(json.RawMessage, int) (game.Logic, error) {
		return waitingLogic{}, nil
	})

	srv := New(testConfig(), registry)
	limiter, err := ratelimit.New(testConfig(), nil)
	require.NoError(t, err)

	router := gin.New()
	srv.RegisterRoutes(router, limiter)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Shutdown(ctx))
	})
	return srv, router
}

func postJSON(router *gin.Engine, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func get(router *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestCreateRoom_AssignsSequentialIDs(t *testing.T) {
	_, router := newTestServer(t)

	w := postJSON(router, "/room", `{"game":"test","agents":["network"]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"roomID":0}`, w.Body.String())

	w = postJSON(router, "/room", `{"game":"test","agents":["network","human"]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"roomID":1}`, w.Body.String())
}

func TestCreateRoom_RejectsBadRequests(t *testing.T) {
	_, router := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown game", `{"game":"chess","agents":["network"]}`},
		{"no agents", `{"game":"test","agents":[]}`},
		{"unknown agent kind", `{"game":"test","agents":["alien"]}`},
		{"malformed json", `{"game":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(router, "/room", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestListRooms(t *testing.T) {
	_, router := newTestServer(t)

	w := get(router, "/room/list")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	postJSON(router, "/room", `{"game":"test","agents":["network","human"]}`)

	w = get(router, "/room/list")
	require.Equal(t, http.StatusOK, w.Code)

	var list map[string]types.RoomSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, 0, list["0"].Spectators)
	assert.Contains(t, w.Body.String(), `"FREE"`)
	assert.Contains(t, w.Body.String(), `"CONNECTED"`)
}

func TestOptionsRoom_ListsGames(t *testing.T) {
	_, router := newTestServer(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/room", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "POST", w.Header().Get("Allow"))
	assert.JSONEq(t, `{"enum":["test"]}`, w.Body.String())
}

func TestLogin_SetsSignedCookie(t *testing.T) {
	srv, router := newTestServer(t)

	w := postJSON(router, "/login", `{"username":"<b>Alice</b>"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)

	// Markup is stripped before signing.
	name, err := srv.Cookies().Verify(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, types.Username("Alice"), name)
}

func TestLogin_RejectsEmptyUsername(t *testing.T) {
	_, router := newTestServer(t)

	w := postJSON(router, "/login", `{"username":"<script></script>"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDispatchRoom(t *testing.T) {
	_, router := newTestServer(t)
	postJSON(router, "/room", `{"game":"test","agents":["network"]}`)

	w := get(router, "/r/0/html?seat=watch&username=carol")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<div>table</div>", w.Body.String())

	assert.Equal(t, http.StatusNotFound, get(router, "/r/99/html?seat=watch&username=carol").Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/r/abc/html?seat=watch&username=carol").Code)
}

func TestShutdown_RemovesAllRooms(t *testing.T) {
	srv, router := newTestServer(t)
	postJSON(router, "/room", `{"game":"test","agents":["network"]}`)
	postJSON(router, "/room", `{"game":"test","agents":["network"]}`)
	require.Equal(t, 2, srv.RoomCount())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Equal(t, 0, srv.RoomCount())

	// New rooms are refused once the server is draining.
	w := postJSON(router, "/room", `{"game":"test","agents":["network"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// And the lobby stream is gone.
	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/room/list/watch").Code)
}

func TestWatchRooms_StreamsLobbyEvents(t *testing.T) {
	srv, router := newTestServer(t)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/room/list/watch")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines <- line
			}
		}
		close(lines)
	}()

	readLine := func() string {
		select {
		case line := <-lines:
			return line
		case <-time.After(5 * time.Second):
			t.Fatal("timed out reading from the event stream")
			return ""
		}
	}

	id, err := srv.CreateRoom(&game.RoomRequest{Game: "test", Agents: []game.AgentKind{game.AgentNetwork}})
	require.NoError(t, err)

	assert.Equal(t, "event: add", readLine())
	data := readLine()
	assert.True(t, strings.HasPrefix(data, "data: "), "got %q", data)

	var event types.LobbyEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &event))
	assert.Equal(t, id, event.RoomID)
	assert.Equal(t, types.StateFree, event.Value.Seats[1])

	// Shutdown ends the stream gracefully.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			// Remove events for the interrupted rooms may still be queued.
			_ = line
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not end after shutdown")
		}
	}
}
