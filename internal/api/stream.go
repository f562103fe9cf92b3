package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/middleware"
	"github.com/pharmds-ddi-server/internal/snapshot"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
	streamBuffer     = 16
)

// EventCurrent is sent once on connect with the published snapshot.
const EventCurrent snapshot.EventType = "current"

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := make(map[string]bool, len(s.cfg.Server.AllowedOrigins))
	for _, o := range s.cfg.Server.AllowedOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed["*"] || allowed[origin] {
				return true
			}
			// Same-origin requests are always accepted.
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// handleSnapshotStream pushes snapshot reload events over a websocket until
// the client disconnects.
func (s *Server) handleSnapshotStream(c *gin.Context) {
	conn, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.WithError(err).Debug("Snapshot stream upgrade failed")
		return
	}
	defer conn.Close()

	log := s.log.WithFields(logrus.Fields{
		"correlation_id": middleware.GetCorrelationID(c),
		"remote":         c.ClientIP(),
	})
	log.Info("Snapshot stream opened")
	defer log.Info("Snapshot stream closed")

	events, cancel := s.deps.Snapshots.Subscribe(streamBuffer)
	defer cancel()

	if snap := s.deps.Snapshots.Current(); snap != nil {
		hello := snapshot.Event{
			Type:        EventCurrent,
			Version:     snap.Version,
			Fingerprint: snap.Fingerprint,
			Rules:       snap.Rules.Len(),
			Drugs:       snap.KB.Stats().Drugs,
			Time:        snap.LoadedAt,
		}
		if err := writeEvent(conn, hello); err != nil {
			return
		}
	}

	// The read loop only services control frames and notices disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				log.WithError(err).Debug("Snapshot stream write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev snapshot.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(ev)
}
