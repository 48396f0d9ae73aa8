package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// writeTimeout bounds a single snapshot write so one stalled client cannot
// block its push loop forever.
const writeTimeout = 5 * time.Second

// handleWebsocket streams live game snapshots to one client: one push per
// interval, plus an immediate push whenever a segment is scored. The client
// is not expected to send anything; the read side only watches for close.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	ctx := conn.CloseRead(r.Context())
	scored := s.subscribe()
	defer s.unsubscribe(scored)

	s.log.Debug("websocket client connected", "remote", r.RemoteAddr)

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
		case <-scored:
		}

		if err := s.pushSnapshot(ctx, conn); err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				s.log.Debug("websocket push failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
	}
}

func (s *Server) pushSnapshot(ctx context.Context, conn *websocket.Conn) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, s.ctrl.Snapshot())
}
