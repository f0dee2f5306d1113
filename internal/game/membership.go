package game

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"codeclash/backend/internal/store"
)

// ToggleReady flips the user's ready flag. Allowed in any status; it only
// matters for the WAITING->PLAYING gate.
func (c *Coordinator) ToggleReady(ctx context.Context, roomID, userID int64) error {
	return c.locker.WithLock(ctx, roomID, func() error {
		if _, err := c.roomInfo(ctx, roomID); err != nil {
			return err
		}
		current, err := c.store.HGet(ctx, keyRoomReady(roomID), userField(userID))
		if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			return err
		}
		next := current != "true"
		if err := c.store.HSet(ctx, keyRoomReady(roomID), userField(userID), strconv.FormatBool(next)); err != nil {
			return err
		}
		c.pub.Publish(RoomTopic(roomID), Event{Type: EventReady, Payload: map[string]interface{}{
			"userId":  userID,
			"isReady": next,
		}})
		return nil
	})
}

// ChangeTeam moves the user to the requested team unless it is at the cap.
func (c *Coordinator) ChangeTeam(ctx context.Context, roomID, userID int64, team Team) error {
	return c.locker.WithLock(ctx, roomID, func() error {
		if _, err := c.roomInfo(ctx, roomID); err != nil {
			return err
		}
		teams, err := c.store.HGetAll(ctx, keyRoomTeams(roomID))
		if err != nil {
			return err
		}
		var count int
		for member, assigned := range teams {
			if Team(assigned) == team && member != userField(userID) {
				count++
			}
		}
		if count >= teamCap {
			return ErrTeamFull
		}
		if err := c.store.HSet(ctx, keyRoomTeams(roomID), userField(userID), string(team)); err != nil {
			return err
		}
		c.pub.Publish(RoomTopic(roomID), Event{Type: EventTeam, Payload: map[string]interface{}{
			"userId": userID,
			"team":   team,
		}})
		return nil
	})
}

// Leave removes a user from a room, or records a soft departure.
//
// DISCONNECT while the match is PLAYING (or already END) keeps the player in
// the roster so a later Join reconnects them with their ready/team state
// intact. Every other mode, and DISCONNECT before the match starts, is a hard
// departure.
func (c *Coordinator) Leave(ctx context.Context, roomID, userID int64, mode LeaveMode) error {
	return c.locker.WithLock(ctx, roomID, func() error {
		if _, err := c.roomInfo(ctx, roomID); err != nil {
			return err
		}
		status, err := c.roomStatus(ctx, roomID)
		if err != nil {
			return err
		}

		if mode == LeaveDisconnect && status != StatusWaiting {
			// Soft departure: no roster mutation, just tell the room.
			c.pub.Publish(RoomTopic(roomID), Event{Type: EventLeave, Payload: map[string]interface{}{
				"userId":    userID,
				"temporary": true,
			}})
			c.log.Info().Int64("room_id", roomID).Int64("user_id", userID).
				Str("status", string(status)).Msg("user disconnected, holding seat for reconnect")
			return nil
		}

		eventType := EventLeave
		if mode == LeaveForfeit {
			eventType = EventForfeit
		}
		return c.departLocked(ctx, roomID, userID, eventType)
	})
}

// Kick hard-removes the target. Host-only, and never the host themselves.
func (c *Coordinator) Kick(ctx context.Context, roomID, callerID, targetID int64) error {
	return c.locker.WithLock(ctx, roomID, func() error {
		info, err := c.roomInfo(ctx, roomID)
		if err != nil {
			return err
		}
		if info["hostId"] != userField(callerID) {
			return ErrUnauthorized
		}
		if callerID == targetID {
			return ErrInvalidTarget
		}
		return c.departLocked(ctx, roomID, targetID, EventKick)
	})
}

// departLocked performs a hard departure: roster cleanup, room deletion when
// empty, host migration when the host left, and the room/lobby broadcasts.
func (c *Coordinator) departLocked(ctx context.Context, roomID, userID int64, eventType string) error {
	if err := c.store.SRem(ctx, keyRoomPlayers(roomID), userField(userID)); err != nil {
		return err
	}
	if err := c.store.Del(ctx, keyUserCurrentGame(userID)); err != nil {
		return err
	}
	if err := c.store.HDel(ctx, keyRoomReady(roomID), userField(userID)); err != nil {
		return err
	}
	if err := c.store.HDel(ctx, keyRoomTeams(roomID), userField(userID)); err != nil {
		return err
	}

	c.pub.Publish(RoomTopic(roomID), Event{Type: eventType, Payload: map[string]interface{}{
		"userId":   userID,
		"nickname": c.nickname(ctx, userID),
	}})

	remaining, err := c.store.SCard(ctx, keyRoomPlayers(roomID))
	if err != nil {
		return err
	}
	if remaining == 0 {
		return c.deleteRoomLocked(ctx, roomID)
	}

	info, err := c.roomInfo(ctx, roomID)
	if err != nil {
		return err
	}
	if info["hostId"] == userField(userID) {
		if err := c.migrateHostLocked(ctx, roomID); err != nil {
			return err
		}
	}

	c.pub.Publish(LobbyTopic, Event{Type: EventLobbyPlayerUpdate, Payload: map[string]interface{}{
		"roomId":         roomID,
		"currentPlayers": remaining,
	}})
	c.log.Info().Int64("room_id", roomID).Int64("user_id", userID).
		Str("event", eventType).Int64("remaining", remaining).Msg("user left room")
	return nil
}

// migrateHostLocked promotes an arbitrary remaining member to host.
func (c *Coordinator) migrateHostLocked(ctx context.Context, roomID int64) error {
	members, err := c.store.SMembers(ctx, keyRoomPlayers(roomID))
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	newHost := members[0]
	if err := c.store.HSet(ctx, keyRoomInfo(roomID), "hostId", newHost); err != nil {
		return err
	}

	newHostID, _ := strconv.ParseInt(newHost, 10, 64)
	nickname := c.nickname(ctx, newHostID)
	c.pub.Publish(RoomTopic(roomID), Event{Type: EventHostChange, Payload: map[string]interface{}{
		"newHostId":       newHostID,
		"newHostNickname": nickname,
	}})
	c.pub.Publish(LobbyTopic, Event{Type: EventLobbyHostUpdate, Payload: map[string]interface{}{
		"roomId":       roomID,
		"hostNickname": nickname,
	}})
	c.log.Info().Int64("room_id", roomID).Int64("new_host_id", newHostID).Msg("host migrated")
	return nil
}

// deleteRoomLocked removes every key the room ever created and tells the
// lobby. A room with zero players has no right to exist.
func (c *Coordinator) deleteRoomLocked(ctx context.Context, roomID int64) error {
	c.pub.Publish(LobbyTopic, Event{Type: EventLobbyRoomDeleted, Payload: map[string]interface{}{
		"roomId": roomID,
	}})

	if err := c.store.Del(ctx, roomKeys(roomID)...); err != nil {
		return err
	}
	if err := c.store.SRem(ctx, keyRoomIDs, strconv.FormatInt(roomID, 10)); err != nil {
		return err
	}
	c.log.Info().Int64("room_id", roomID).Msg("room deleted")
	return nil
}

// publishEnter emits ENTER with the joiner's full seat state so clients can
// render the roster without another round trip.
func (c *Coordinator) publishEnter(ctx context.Context, roomID, userID int64, info map[string]string) {
	payload := map[string]interface{}{
		"userId": userID,
		"host":   info["hostId"] == userField(userID),
	}
	if user, err := c.users.Lookup(ctx, userID); err == nil {
		payload["nickname"] = user.Nickname
		payload["profileImg"] = user.ProfileImg
	} else {
		payload["nickname"] = "Unknown"
	}
	ready, err := c.store.HGet(ctx, keyRoomReady(roomID), userField(userID))
	payload["ready"] = err == nil && ready == "true"
	if team, err := c.store.HGet(ctx, keyRoomTeams(roomID), userField(userID)); err == nil {
		payload["team"] = team
	}
	c.pub.Publish(RoomTopic(roomID), Event{Type: EventEnter, Payload: payload})
}

// broadcastLobbyJoin announces the room to the lobby. The creation event
// fires once, on the host's first join, guarded by a marker key; every join
// also refreshes the lobby's player count.
func (c *Coordinator) broadcastLobbyJoin(ctx context.Context, roomID, userID int64, info map[string]string) {
	marked, err := c.store.Exists(ctx, keyRoomBroadcasted(roomID))
	if err == nil && !marked && info["hostId"] == userField(userID) {
		c.pub.Publish(LobbyTopic, Event{Type: EventLobbyRoomCreated, Payload: c.lobbyCreatePayload(ctx, roomID, userID, info)})
		if err := c.store.Set(ctx, keyRoomBroadcasted(roomID), "true"); err != nil {
			c.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to mark room as broadcasted")
		}
	}

	count, err := c.store.SCard(ctx, keyRoomPlayers(roomID))
	if err != nil {
		return
	}
	c.pub.Publish(LobbyTopic, Event{Type: EventLobbyPlayerUpdate, Payload: map[string]interface{}{
		"roomId":         roomID,
		"currentPlayers": count,
	}})
}

// lobbyCreatePayload decorates the creation event with catalog titles.
// Enrichment is best-effort; a failed lookup leaves the field empty.
func (c *Coordinator) lobbyCreatePayload(ctx context.Context, roomID, hostID int64, info map[string]string) map[string]interface{} {
	maxPlayers, _ := strconv.Atoi(info["maxPlayers"])
	timeLimit, _ := strconv.Atoi(info["timeLimit"])
	problemCount, _ := strconv.Atoi(info["problemCount"])

	payload := map[string]interface{}{
		"roomId":         roomID,
		"title":          info["title"],
		"mode":           info["mode"],
		"teamType":       info["teamType"],
		"maxPlayers":     maxPlayers,
		"currentPlayers": 1,
		"status":         string(StatusWaiting),
		"isSecret":       info["password"] != "",
		"timeLimit":      timeLimit,
		"problemCount":   problemCount,
	}

	host := map[string]interface{}{"id": hostID}
	if user, err := c.users.Lookup(ctx, hostID); err == nil {
		host["nickname"] = user.Nickname
		host["profileImg"] = user.ProfileImg
	} else {
		host["nickname"] = "Unknown"
	}
	payload["host"] = host

	if c.enrich != nil {
		if tags := info["tags"]; tags != "" {
			payload["tags"] = c.enrich.TagNames(ctx, strings.Split(tags, ","))
		}
		if problems := info["problems"]; problems != "" {
			var ids []uint
			for _, raw := range strings.Split(problems, ",") {
				if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
					ids = append(ids, uint(id))
				}
			}
			payload["problemTitles"] = c.enrich.ProblemTitles(ctx, ids)
		}
	}
	return payload
}

func (c *Coordinator) nickname(ctx context.Context, userID int64) string {
	if user, err := c.users.Lookup(ctx, userID); err == nil {
		return user.Nickname
	}
	return "Unknown"
}
