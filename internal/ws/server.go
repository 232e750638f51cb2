// Package ws streams job status changes to websocket clients.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/slidedeck/explainer/internal/service"
)

// StatusSource answers status queries.
type StatusSource interface {
	Status(ctx context.Context, id string) (*service.StatusResponse, error)
}

type Server struct {
	source   StatusSource
	interval time.Duration
	log      zerolog.Logger

	watchersMu sync.Mutex
	watchers   map[string]int
}

func NewServer(source StatusSource, interval time.Duration, log zerolog.Logger) *Server {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Server{
		source:   source,
		interval: interval,
		log:      log.With().Str("component", "ws").Logger(),
		watchers: make(map[string]int),
	}
}

// Watchers reports the number of open status streams.
func (s *Server) Watchers() int {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()
	n := 0
	for _, c := range s.watchers {
		n += c
	}
	return n
}

func (s *Server) track(uid string, delta int) {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()
	s.watchers[uid] += delta
	if s.watchers[uid] <= 0 {
		delete(s.watchers, uid)
	}
}

// HandleStatus pushes the job's status whenever it changes and closes the
// stream once the job is done.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected exit")

	s.track(uid, 1)
	defer s.track(uid, -1)

	// The client never sends anything; CloseRead handles control frames and
	// cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if err := s.stream(ctx, conn, uid); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug().Err(err).Str("uid", uid).Msg("status stream ended")
	}
}

func (s *Server) stream(ctx context.Context, conn *websocket.Conn, uid string) error {
	last := ""
	for {
		resp, err := s.source.Status(ctx, uid)
		switch {
		case errors.Is(err, service.ErrNotFound):
			msg := ErrorMessage{Type: TypeError, UID: uid, Error: service.ErrNotFound.Error()}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return err
			}
			return conn.Close(websocket.StatusNormalClosure, "not found")
		case err != nil:
			s.log.Error().Err(err).Str("uid", uid).Msg("status lookup")
			msg := ErrorMessage{Type: TypeError, UID: uid, Error: "status unavailable"}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				s.log.Debug().Err(err).Str("uid", uid).Msg("write error message")
			}
			return conn.Close(websocket.StatusInternalError, "status unavailable")
		}

		if resp.Status != last {
			msg := StatusMessage{
				Type:        TypeStatus,
				UID:         uid,
				Status:      resp.Status,
				Filename:    resp.Filename,
				Timestamp:   resp.Timestamp,
				Explanation: resp.Explanation,
			}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return err
			}
			last = resp.Status
		}
		if resp.Status == service.StatusDone {
			return conn.Close(websocket.StatusNormalClosure, "done")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}
