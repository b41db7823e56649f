// Package ws owns the websocket endpoint: the subscribe handshake, the
// per-connection read and write pumps, and peer-to-peer relay of call
// signaling frames.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/staffdeck/realtime-api/internal/config"
	"github.com/staffdeck/realtime-api/internal/hub"
	"github.com/staffdeck/realtime-api/internal/middleware"
	"github.com/staffdeck/realtime-api/pkg/metrics"
	"github.com/staffdeck/realtime-api/pkg/realtime"
)

type Handler struct {
	hub      *hub.Hub
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(h *hub.Hub, cfg config.RealtimeConfig, logger *zerolog.Logger) *Handler {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "ws").Logger()
	}
	return &Handler{
		hub: h,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browsers cannot set Origin freely; the JWT is the actual
			// access control here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log,
	}
}

// Serve upgrades the request and runs the connection until the client
// disconnects. Authentication has already happened in middleware.
func (h *Handler) Serve(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if err := h.awaitSubscribe(ws, userID); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("subscribe handshake failed")
		ws.Close()
		return
	}

	conn := h.hub.Register(userID, ws)
	metrics.ActiveConnections.Set(float64(h.hub.Len()))
	log := h.logger.With().Str("user_id", userID.String()).Logger()
	log.Info().Msg("client subscribed")

	go h.writePump(conn, log)
	h.readPump(conn, log)

	h.hub.Unregister(conn)
	metrics.ActiveConnections.Set(float64(h.hub.Len()))
	log.Info().Msg("client disconnected")
}

// awaitSubscribe reads the identity announcement that every client sends
// as its first frame, and rejects it when it names someone other than the
// token subject.
func (h *Handler) awaitSubscribe(ws *websocket.Conn, userID uuid.UUID) error {
	ws.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout))
	defer ws.SetReadDeadline(time.Time{})

	var ev realtime.Envelope
	if err := ws.ReadJSON(&ev); err != nil {
		return err
	}
	if ev.Type != realtime.EventSubscribe {
		return errUnexpectedFrame(ev.Type)
	}
	var sub realtime.SubscribePayload
	if err := ev.DecodePayload(&sub); err != nil {
		return err
	}
	if sub.UserID != userID {
		return errIdentityMismatch{announced: sub.UserID, authenticated: userID}
	}
	return nil
}

// readPump consumes client frames until the connection breaks. Call
// signaling frames are relayed to the named peer; everything else a
// client sends is ignored.
func (h *Handler) readPump(conn *hub.Conn, log zerolog.Logger) {
	// lastCallPeer remembers the other side of an in-flight call so the
	// peer can be told when this side vanishes mid-call.
	var lastCallPeer uuid.UUID

	conn.WS.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.WS.SetPongHandler(func(string) error {
		conn.WS.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		return nil
	})

	for {
		var ev realtime.Envelope
		if err := conn.WS.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("connection broke")
			}
			break
		}
		conn.WS.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))

		switch {
		case ev.Type == realtime.EventSubscribe:
			// Re-announce after reconnect lands on a fresh connection, so
			// a repeat on a live one carries no new information.
			continue
		case ev.IsCallSignal():
			lastCallPeer = h.relaySignal(conn, ev, lastCallPeer, log)
		default:
			log.Debug().Str("type", string(ev.Type)).Msg("ignoring client frame")
		}
	}

	if lastCallPeer != uuid.Nil {
		h.notifyPeerGone(conn.UserID, lastCallPeer)
	}
}

// relaySignal forwards a call signaling frame to its target and returns
// the updated in-flight peer, uuid.Nil once the call is over.
func (h *Handler) relaySignal(conn *hub.Conn, ev realtime.Envelope, lastCallPeer uuid.UUID, log zerolog.Logger) uuid.UUID {
	var signal realtime.CallSignal
	if err := ev.DecodePayload(&signal); err != nil {
		log.Warn().Err(err).Str("type", string(ev.Type)).Msg("dropping malformed call signal")
		return lastCallPeer
	}
	if signal.From != conn.UserID {
		log.Warn().Str("claimed_from", signal.From.String()).Msg("dropping spoofed call signal")
		return lastCallPeer
	}

	delivered := h.hub.SendToUser(signal.To, ev)
	if delivered {
		metrics.EventsFannedOut.WithLabelValues(string(ev.Type)).Inc()
	}

	switch ev.Type {
	case realtime.EventCallOffer:
		if !delivered {
			// The callee has no live connection; answer on their behalf so
			// the caller's session can settle instead of ringing out.
			h.sendDecline(conn, signal)
			return uuid.Nil
		}
		return signal.To
	case realtime.EventCallEnd, realtime.EventCallDecline:
		return uuid.Nil
	default:
		return signal.To
	}
}

// sendDecline pushes a synthetic offline decline back to the caller.
func (h *Handler) sendDecline(conn *hub.Conn, offer realtime.CallSignal) {
	decline, err := realtime.NewEnvelope(realtime.EventCallDecline, realtime.CallSignal{
		SessionID: offer.SessionID,
		From:      offer.To,
		To:        offer.From,
		Reason:    realtime.ReasonOffline,
	})
	if err != nil {
		return
	}
	h.hub.SendToUser(conn.UserID, decline)
}

// notifyPeerGone tells the other party of an in-flight call that this
// side's channel is gone.
func (h *Handler) notifyPeerGone(userID, peer uuid.UUID) {
	ev, err := realtime.NewEnvelope(realtime.EventCallEnd, realtime.CallSignal{
		From:   userID,
		To:     peer,
		Reason: realtime.ReasonPeerGone,
	})
	if err != nil {
		return
	}
	h.hub.SendToUser(peer, ev)
}

// writePump drains the outbound queue onto the wire and keeps the
// connection alive with pings.
func (h *Handler) writePump(conn *hub.Conn, log zerolog.Logger) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-conn.Done():
			return
		case ev := <-conn.Out:
			conn.WS.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WS.WriteJSON(ev); err != nil {
				log.Warn().Err(err).Msg("write failed")
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.WS.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

type errIdentityMismatch struct {
	announced     uuid.UUID
	authenticated uuid.UUID
}

func (e errIdentityMismatch) Error() string {
	return "subscribe announced " + e.announced.String() + " but token names " + e.authenticated.String()
}

type errUnexpectedFrame realtime.EventType

func (e errUnexpectedFrame) Error() string {
	return "expected subscribe frame, got " + string(e)
}
