package game

import "fmt"

// Event is the payload fanned out to room and lobby subscribers. Delivery is
// at-least-once; consumers must tolerate duplicates.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Room-scoped event types.
const (
	EventEnter        = "ENTER"
	EventLeave        = "LEAVE"
	EventForfeit      = "FORFEIT"
	EventKick         = "KICK"
	EventReady        = "READY"
	EventTeam         = "TEAM"
	EventScore        = "SCORE"
	EventHostChange   = "HOST_CHANGE"
	EventStatusChange = "STATUS_CHANGE"
	EventStart        = "START"
	EventResult       = "RESULT"
)

// Lobby-scoped event types.
const (
	EventLobbyRoomCreated  = "LOBBY_ROOM_CREATED"
	EventLobbyRoomDeleted  = "LOBBY_ROOM_DELETED"
	EventLobbyPlayerUpdate = "LOBBY_PLAYER_UPDATE"
	EventLobbyHostUpdate   = "LOBBY_HOST_UPDATE"
)

// LobbyTopic carries room list updates to everyone browsing the lobby.
const LobbyTopic = "lobby"

// RoomTopic is the broadcast topic for a single room.
func RoomTopic(roomID int64) string {
	return fmt.Sprintf("games:%d", roomID)
}
