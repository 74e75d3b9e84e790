// internal/httpapi/stream.go
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/tamzrod/benchlab-telemetry/internal/gateway"
)

// stream upgrades to a WebSocket and sends one message per reading.
// JSON text frames by default, CBOR binary frames with ?format=cbor.
// The subscription is opened before the upgrade so lookup failures are
// answered with a plain HTTP status.
func (s *server) stream(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]

	sub, err := s.svc.Subscribe(uid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer sub.Close()

	asCBOR := wantsCBOR(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.log.Debug("websocket upgrade failed", "uid", uid, "error", err)
		return
	}
	defer conn.Close()

	log := s.log.With("uid", sub.UID, "subscription", sub.ID)
	log.Debug("stream opened")

	// Reader: consumes control frames and notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	msgType := websocket.TextMessage
	if asCBOR {
		msgType = websocket.BinaryMessage
	}

	for {
		select {
		case <-gone:
			log.Debug("stream closed by client")
			return

		case rd, ok := <-sub.C:
			if !ok {
				s.closeStream(conn, sub.Err())
				log.Debug("stream ended", "error", sub.Err())
				return
			}

			b, _, err := marshal(rd, asCBOR)
			if err != nil {
				log.Error("encode stream message", "error", err)
				return
			}

			_ = conn.SetWriteDeadline(time.Now().Add(s.wt))
			if err := conn.WriteMessage(msgType, b); err != nil {
				log.Debug("stream write failed", "error", err)
				return
			}
		}
	}
}

// closeStream sends a close frame describing why the subscription ended.
func (s *server) closeStream(conn *websocket.Conn, err error) {
	code, text := websocket.CloseNormalClosure, ""
	switch {
	case errors.Is(err, gateway.ErrSlowConsumer):
		code, text = websocket.CloseTryAgainLater, "slow consumer"
	case errors.Is(err, gateway.ErrShuttingDown):
		code, text = websocket.CloseGoingAway, "shutting down"
	}

	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.wt))
}
