package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/slidedeck/explainer/internal/service"
)

// scriptedSource reports pending for the first n queries, then done.
type scriptedSource struct {
	mu      sync.Mutex
	pending int
	calls   int
}

func (s *scriptedSource) Status(ctx context.Context, id string) (*service.StatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if id == "missing" {
		return nil, service.ErrNotFound
	}
	if s.calls <= s.pending {
		return &service.StatusResponse{Status: service.StatusPending, Filename: "deck.pptx", Timestamp: "20240501120000"}, nil
	}
	return &service.StatusResponse{
		Status:      service.StatusDone,
		Filename:    "deck.pptx",
		Timestamp:   "20240501120000",
		Explanation: []byte(`[{"index":0,"explanation":"hi"}]`),
	}, nil
}

func newTestServer(t *testing.T, src StatusSource) (*Server, string) {
	t.Helper()
	s := NewServer(src, 10*time.Millisecond, zerolog.Nop())
	r := chi.NewRouter()
	r.Get("/ws/status/{uid}", s.HandleStatus)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHandleStatus_PushesChangesThenCloses(t *testing.T) {
	_, url := newTestServer(t, &scriptedSource{pending: 3})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url+"/ws/status/abc", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first StatusMessage
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Equal(t, TypeStatus, first.Type)
	assert.Equal(t, "abc", first.UID)
	assert.Equal(t, service.StatusPending, first.Status)

	// Repeated pending polls are not re-sent.
	var second StatusMessage
	require.NoError(t, wsjson.Read(ctx, conn, &second))
	assert.Equal(t, service.StatusDone, second.Status)
	assert.JSONEq(t, `[{"index":0,"explanation":"hi"}]`, string(second.Explanation))

	var extra StatusMessage
	err = wsjson.Read(ctx, conn, &extra)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHandleStatus_NotFound(t *testing.T) {
	_, url := newTestServer(t, &scriptedSource{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url+"/ws/status/missing", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg ErrorMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "UID not found", msg.Error)

	err = wsjson.Read(ctx, conn, &msg)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHandleStatus_TracksWatchers(t *testing.T) {
	s, url := newTestServer(t, &scriptedSource{pending: 1 << 30})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url+"/ws/status/abc", nil)
	require.NoError(t, err)

	var msg StatusMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, 1, s.Watchers())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return s.Watchers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandleStatus_LookupError(t *testing.T) {
	src := statusFunc(func(ctx context.Context, id string) (*service.StatusResponse, error) {
		return nil, errors.New("disk gone")
	})
	_, url := newTestServer(t, src)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url+"/ws/status/abc", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg ErrorMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "status unavailable", msg.Error)
}

type statusFunc func(ctx context.Context, id string) (*service.StatusResponse, error)

func (f statusFunc) Status(ctx context.Context, id string) (*service.StatusResponse, error) {
	return f(ctx, id)
}
