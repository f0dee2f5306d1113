package game

import (
	"context"
	"errors"
	"strconv"
	"time"

	"codeclash/backend/internal/store"
)

// transitionLocked validates and applies one lifecycle step. Same-state
// requests are idempotent no-ops with no event. Returns the previous status
// and whether anything changed.
//
// WAITING -> PLAYING | END
// PLAYING -> END
// END     -> (terminal)
func (c *Coordinator) transitionLocked(ctx context.Context, roomID int64, next Status) (Status, bool, error) {
	current, err := c.roomStatus(ctx, roomID)
	if err != nil {
		return "", false, err
	}
	if current == next {
		return current, false, nil
	}

	valid := false
	switch current {
	case StatusWaiting:
		valid = next == StatusPlaying || next == StatusEnd
	case StatusPlaying:
		valid = next == StatusEnd
	case StatusEnd:
		valid = false
	}
	if !valid {
		return current, false, &TransitionError{From: current, To: next}
	}

	if err := c.store.Set(ctx, keyRoomStatus(roomID), string(next)); err != nil {
		return current, false, err
	}
	if current == StatusWaiting && next == StatusPlaying {
		// startTime is stamped exactly once, here.
		millis := c.now().UnixMilli()
		if err := c.store.Set(ctx, keyRoomStart(roomID), strconv.FormatInt(millis, 10)); err != nil {
			return current, false, err
		}
	}
	if next == StatusEnd {
		// The end stamp drives the sweeper's reaping of finished rooms.
		millis := c.now().UnixMilli()
		if err := c.store.Set(ctx, keyRoomEnd(roomID), strconv.FormatInt(millis, 10)); err != nil {
			return current, false, err
		}
	}

	c.pub.Publish(RoomTopic(roomID), Event{Type: EventStatusChange, Payload: next})
	c.log.Info().Int64("room_id", roomID).
		Str("from", string(current)).Str("to", string(next)).Msg("room status changed")
	return current, true, nil
}

// StartGame moves the room into PLAYING. Only the host may start, and only
// when every current member is ready; both checks run under the room lock so
// a join racing the start cannot slip an unready player into a live match.
func (c *Coordinator) StartGame(ctx context.Context, roomID, callerID int64) error {
	return c.locker.WithLock(ctx, roomID, func() error {
		info, err := c.roomInfo(ctx, roomID)
		if err != nil {
			return err
		}
		if info["hostId"] != userField(callerID) {
			return ErrUnauthorized
		}

		status, err := c.roomStatus(ctx, roomID)
		if err != nil {
			return err
		}
		if status == StatusWaiting {
			players, err := c.store.SMembers(ctx, keyRoomPlayers(roomID))
			if err != nil {
				return err
			}
			ready, err := c.store.HGetAll(ctx, keyRoomReady(roomID))
			if err != nil {
				return err
			}
			for _, player := range players {
				if ready[player] != "true" {
					return &TransitionError{From: StatusWaiting, To: StatusPlaying, Reason: "not all players are ready"}
				}
			}
		}

		_, changed, err := c.transitionLocked(ctx, roomID, StatusPlaying)
		if err != nil || !changed {
			return err
		}

		timeLimit, _ := strconv.Atoi(info["timeLimit"])
		c.pub.Publish(RoomTopic(roomID), Event{Type: EventStart, Payload: map[string]interface{}{
			"roomId":    roomID,
			"timeLimit": timeLimit,
			"mode":      info["mode"],
		}})
		return nil
	})
}

// EndGame terminates the room on the host's request. Ending an already-ended
// room is a no-op; ending a PLAYING room settles it.
func (c *Coordinator) EndGame(ctx context.Context, roomID, callerID int64) error {
	return c.locker.WithLock(ctx, roomID, func() error {
		info, err := c.roomInfo(ctx, roomID)
		if err != nil {
			return err
		}
		if info["hostId"] != userField(callerID) {
			return ErrUnauthorized
		}
		return c.endLocked(ctx, roomID, info)
	})
}

// ForceEnd terminates an overdue room on the sweeper's behalf. It takes the
// same lock and runs the same transition as a user-initiated end, so the two
// can race safely: whoever loses sees the idempotent END->END no-op.
func (c *Coordinator) ForceEnd(ctx context.Context, roomID int64) error {
	return c.locker.WithLock(ctx, roomID, func() error {
		info, err := c.roomInfo(ctx, roomID)
		if err != nil {
			return err
		}
		return c.endLocked(ctx, roomID, info)
	})
}

func (c *Coordinator) endLocked(ctx context.Context, roomID int64, info map[string]string) error {
	prev, changed, err := c.transitionLocked(ctx, roomID, StatusEnd)
	if err != nil {
		return err
	}
	if changed && prev == StatusPlaying {
		// END is terminal, so settlement runs at most once per room.
		c.settleLocked(ctx, roomID, info)
	}
	return nil
}

// ReapEnded deletes a finished room once it has been ended for at least
// retention. Soft-departed players still hold a seat in an ended room, so
// their current-game pointers are cleared before the keys go. Reports whether
// the room was removed.
func (c *Coordinator) ReapEnded(ctx context.Context, roomID int64, retention time.Duration) (bool, error) {
	var reaped bool
	err := c.locker.WithLock(ctx, roomID, func() error {
		status, err := c.roomStatus(ctx, roomID)
		if err != nil {
			return err
		}
		if status != StatusEnd {
			return nil
		}

		endRaw, err := c.store.Get(ctx, keyRoomEnd(roomID))
		if errors.Is(err, store.ErrKeyNotFound) {
			// Ended before the stamp existed; stamp now, reap a later sweep.
			return c.store.Set(ctx, keyRoomEnd(roomID), strconv.FormatInt(c.now().UnixMilli(), 10))
		}
		if err != nil {
			return err
		}
		endMillis, err := strconv.ParseInt(endRaw, 10, 64)
		if err != nil {
			return err
		}
		if c.now().Sub(time.UnixMilli(endMillis)) < retention {
			return nil
		}

		players, err := c.store.SMembers(ctx, keyRoomPlayers(roomID))
		if err != nil {
			return err
		}
		for _, player := range players {
			userID, err := strconv.ParseInt(player, 10, 64)
			if err != nil {
				continue
			}
			if err := c.store.Del(ctx, keyUserCurrentGame(userID)); err != nil {
				return err
			}
		}
		reaped = true
		return c.deleteRoomLocked(ctx, roomID)
	})
	return reaped, err
}

// ReportScore credits solved-problem points to the room's live ranking.
// Scores only move while the match is PLAYING.
func (c *Coordinator) ReportScore(ctx context.Context, roomID, userID int64, delta float64) error {
	return c.locker.WithLock(ctx, roomID, func() error {
		if _, err := c.roomInfo(ctx, roomID); err != nil {
			return err
		}
		status, err := c.roomStatus(ctx, roomID)
		if err != nil {
			return err
		}
		if status != StatusPlaying {
			return ErrRoomNotPlaying
		}
		if err := c.store.ZIncrBy(ctx, keyRoomRanking(roomID), delta, userField(userID)); err != nil {
			return err
		}
		c.pub.Publish(RoomTopic(roomID), Event{Type: EventScore, Payload: map[string]interface{}{
			"userId": userID,
			"delta":  delta,
		}})
		return nil
	})
}
