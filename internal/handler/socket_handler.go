package handler

import (
	"context"
	"net/http"
	"time"

	"codeclash/backend/internal/game"
	"codeclash/backend/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SocketHandler attaches a player's live connection to a room. The socket
// carries the room's event stream; its close is the disconnect signal that
// feeds the coordinator's soft-departure handling.
type SocketHandler struct {
	coord *game.Coordinator
	hub   *hub.Hub
	log   zerolog.Logger
}

func NewSocketHandler(coord *game.Coordinator, h *hub.Hub, logger zerolog.Logger) *SocketHandler {
	return &SocketHandler{coord: coord, hub: h, log: logger}
}

// RoomSocket upgrades the connection and pumps room events to it until the
// client goes away, then reports the disconnect to the coordinator.
func (h *SocketHandler) RoomSocket(c *gin.Context) {
	userID := c.GetUint("userID")
	roomID, err := roomIDParam(c)
	if err != nil {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	topic := game.RoomTopic(roomID)
	client := make(hub.Client, 32)
	h.hub.Subscribe(topic, client)
	defer h.hub.Unsubscribe(topic, client)

	// Writer: hub -> socket.
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for message := range client {
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}()

	// Reader: we only care about the close. Clients send no commands over
	// this socket; operations go through the HTTP surface.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// The coordinator decides whether this is a soft or hard departure
	// based on the room's status. Use a fresh context: the request context
	// is already cancelled at this point.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.coord.Leave(ctx, roomID, int64(userID), game.LeaveDisconnect); err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Uint("user_id", userID).
			Msg("disconnect cleanup failed")
	}
	<-writeDone
}
