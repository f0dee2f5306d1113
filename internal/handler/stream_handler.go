package handler

import (
	"io"
	"net/http"

	"codeclash/backend/internal/game"
	"codeclash/backend/internal/hub"

	"github.com/gin-gonic/gin"
)

// StreamHandler serves the hub's topics over Server-Sent Events.
type StreamHandler struct {
	hub *hub.Hub
}

func NewStreamHandler(h *hub.Hub) *StreamHandler {
	return &StreamHandler{hub: h}
}

// RoomEvents streams one room's events to the caller.
func (h *StreamHandler) RoomEvents(c *gin.Context) {
	roomID, err := roomIDParam(c)
	if err != nil {
		return
	}
	h.stream(c, game.RoomTopic(roomID))
}

// LobbyEvents streams lobby-wide room list updates.
func (h *StreamHandler) LobbyEvents(c *gin.Context) {
	h.stream(c, game.LobbyTopic)
}

func (h *StreamHandler) stream(c *gin.Context, topic string) {
	client := make(hub.Client, 16)
	h.hub.Subscribe(topic, client)
	defer h.hub.Unsubscribe(topic, client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case message, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("message", string(message))
			return true
		}
	})
}
