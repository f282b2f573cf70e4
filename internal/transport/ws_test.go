package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/krasnov-dev/voicepipe/internal/domain"
	"github.com/krasnov-dev/voicepipe/internal/hub"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLiveServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()

	h := hub.New()
	live := NewLiveHandler(h)
	mux := http.NewServeMux()
	mux.HandleFunc("/live/online", live.online)
	mux.HandleFunc("/live/broadcast", live.broadcast)
	mux.HandleFunc("/live/", live.live)

	srv := httptest.NewServer(WithRecover(LogMiddleware(mux)))
	t.Cleanup(srv.Close)
	return srv, h
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func waitForOnline(t *testing.T, h *hub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Online() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d online connections, have %d", want, h.Online())
}

func TestLiveDeliversNotification(t *testing.T) {
	srv, h := newLiveServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/live/7"), nil)
	require.NoError(t, err)
	defer ws.Close()

	waitForOnline(t, h, 1)

	note := domain.CompletionNotification{
		AudioID: 1001,
		Status:  domain.ResultStatusSuccess,
		Message: "transcription completed",
	}
	payload, err := json.Marshal(note)
	require.NoError(t, err)
	h.SendToUser(7, payload)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var got domain.CompletionNotification
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, note, got)
}

func TestLiveDisconnectUnregisters(t *testing.T) {
	srv, h := newLiveServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/live/9"), nil)
	require.NoError(t, err)
	waitForOnline(t, h, 1)

	require.NoError(t, ws.Close())
	waitForOnline(t, h, 0)
}

func TestLiveRejectsInvalidUserID(t *testing.T) {
	srv, _ := newLiveServer(t)

	resp, err := http.Get(srv.URL + "/live/abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOnlineCount(t *testing.T) {
	srv, h := newLiveServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/live/3"), nil)
	require.NoError(t, err)
	defer ws.Close()
	waitForOnline(t, h, 1)

	resp, err := http.Get(srv.URL + "/live/online")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body["online"])
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	srv, h := newLiveServer(t)

	first, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/live/1"), nil)
	require.NoError(t, err)
	defer first.Close()
	second, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/live/2"), nil)
	require.NoError(t, err)
	defer second.Close()
	waitForOnline(t, h, 2)

	resp, err := http.Post(srv.URL+"/live/broadcast", "application/json",
		strings.NewReader(`{"message":"maintenance at noon"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, ws := range []*websocket.Conn{first, second} {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, raw, err := ws.ReadMessage()
		require.NoError(t, err)

		var got map[string]string
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "maintenance at noon", got["message"])
	}
}

func TestBroadcastRequiresMessage(t *testing.T) {
	srv, _ := newLiveServer(t)

	resp, err := http.Post(srv.URL+"/live/broadcast", "application/json",
		strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
