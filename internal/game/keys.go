package game

import "fmt"

// Store key scheme. Every per-room key embeds the room id so deleteRoom can
// sweep them all; user:*:current-game is the side index used for rejoin
// detection.
const (
	keyRoomIDSeq = "game:room:id.seq"
	keyRoomIDs   = "game:room:ids"
)

func keyRoomInfo(roomID int64) string    { return fmt.Sprintf("game:room:%d:info", roomID) }
func keyRoomStatus(roomID int64) string  { return fmt.Sprintf("game:room:%d:status", roomID) }
func keyRoomPlayers(roomID int64) string { return fmt.Sprintf("game:room:%d:players", roomID) }
func keyRoomReady(roomID int64) string   { return fmt.Sprintf("game:room:%d:ready", roomID) }
func keyRoomTeams(roomID int64) string   { return fmt.Sprintf("game:room:%d:teams", roomID) }
func keyRoomStart(roomID int64) string   { return fmt.Sprintf("game:room:%d:start", roomID) }
func keyRoomEnd(roomID int64) string     { return fmt.Sprintf("game:room:%d:end", roomID) }
func keyRoomRanking(roomID int64) string { return fmt.Sprintf("game:room:%d:ranking", roomID) }

func keyRoomBroadcasted(roomID int64) string {
	return fmt.Sprintf("game:room:%d:broadcasted", roomID)
}

// roomKeys is every key a room can own; teardown deletes them all.
func roomKeys(roomID int64) []string {
	return []string{
		keyRoomInfo(roomID),
		keyRoomStatus(roomID),
		keyRoomPlayers(roomID),
		keyRoomReady(roomID),
		keyRoomTeams(roomID),
		keyRoomStart(roomID),
		keyRoomEnd(roomID),
		keyRoomRanking(roomID),
		keyRoomBroadcasted(roomID),
	}
}

func keyUserCurrentGame(userID int64) string {
	return fmt.Sprintf("user:%d:current-game", userID)
}
