package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collabtext/internal/metrics"
	"collabtext/internal/models"
	"collabtext/internal/relay"
	"collabtext/internal/session"
)

const maxFrameBytes = 1 << 20

// DocumentWS serves one editor connection until it closes.
func (h *Handlers) DocumentWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := session.NewClient(conn)
	if !h.relay.Connect(client) {
		// shutting down
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	metrics.SocketOpened()
	h.log.Info("new user connected", zap.String("client", client.ID))
	defer func() {
		h.relay.Disconnect(client)
		client.Close()
		metrics.SocketClosed()
	}()

	// the socket outlives any per-request deadline
	ctx := context.WithoutCancel(r.Context())

	for {
		var frame models.WSFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Type {
		case models.EventJoinDocument:
			var req models.JoinRequest
			if err := decodeData(frame.Data, &req); err != nil {
				client.Send(errFrame("invalid_payload"))
				continue
			}
			if err := h.relay.Join(ctx, client, req); err != nil {
				client.Send(errFrame(joinErrorMessage(err)))
			}

		case models.EventEditDocument:
			var req models.EditRequest
			if err := decodeData(frame.Data, &req); err != nil {
				client.Send(errFrame("invalid_payload"))
				continue
			}
			h.relay.Edit(ctx, client, req)

		default:
			client.Send(errFrame("unknown_type"))
		}
	}
}

func joinErrorMessage(err error) string {
	var verr *relay.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return relay.MsgLoadFailed
}

// decodeData re-decodes a frame's generic payload into a typed request.
func decodeData(in interface{}, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func errFrame(msg string) models.WSFrame {
	return models.WSFrame{Type: models.EventError, Data: msg}
}
