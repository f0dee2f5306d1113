package game

import (
	"context"
	"fmt"
	"strconv"
)

// settleLocked computes and persists final rewards for a finished room. It is
// reached only through the PLAYING->END transition, which END's terminality
// makes one-shot. A failure on one member is logged and skipped; the rest of
// the room still settles.
func (c *Coordinator) settleLocked(ctx context.Context, roomID int64, info map[string]string) {
	results := c.finalRanking(ctx, roomID)
	if len(results) == 0 {
		c.log.Warn().Int64("room_id", roomID).Msg("no ranking data to settle")
		return
	}

	title := info["title"]
	if title == "" {
		title = strconv.FormatInt(roomID, 10)
	}

	settled := 0
	for _, result := range results {
		user, err := c.users.Lookup(ctx, result.UserID)
		if err != nil {
			c.log.Error().Err(err).Int64("room_id", roomID).Int64("user_id", result.UserID).
				Msg("settlement skipping member: user lookup failed")
			continue
		}

		if err := c.users.AddLeaguePoints(ctx, user.ID, result.Reward); err != nil {
			c.log.Error().Err(err).Int64("room_id", roomID).Int64("user_id", user.ID).
				Msg("settlement skipping member: point credit failed")
			continue
		}

		entry := RewardEntry{
			UserID:      user.ID,
			Amount:      result.Reward,
			Description: fmt.Sprintf("Match reward (room: %s, rank: %d)", title, result.Rank+1),
			Metadata: map[string]interface{}{
				"rank":      result.Rank + 1,
				"roomId":    roomID,
				"roomTitle": title,
				"mode":      info["mode"],
				"teamType":  info["teamType"],
			},
		}
		if err := c.ledger.Append(ctx, entry); err != nil {
			c.log.Error().Err(err).Int64("room_id", roomID).Int64("user_id", user.ID).
				Msg("settlement: ledger append failed")
			continue
		}

		settled++
		c.log.Info().Int64("room_id", roomID).Int64("user_id", user.ID).
			Int("rank", result.Rank+1).Int("reward", result.Reward).Msg("reward settled")
	}

	c.pub.Publish(RoomTopic(roomID), Event{Type: EventResult, Payload: map[string]interface{}{
		"roomId":  roomID,
		"results": results,
	}})
	c.log.Info().Int64("room_id", roomID).Int("settled", settled).
		Int("ranked", len(results)).Msg("settlement finished")
}

// finalRanking orders members by live score descending. Members who never
// scored are appended after the ranked ones at score zero, so every player
// in the room gets a placement and a reward.
func (c *Coordinator) finalRanking(ctx context.Context, roomID int64) []PlayerResult {
	ranked, err := c.store.ZRevRangeWithScores(ctx, keyRoomRanking(roomID))
	if err != nil {
		c.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to read ranking")
		return nil
	}

	seen := make(map[string]bool, len(ranked))
	var results []PlayerResult
	for _, member := range ranked {
		seen[member.Member] = true
		userID, err := strconv.ParseInt(member.Member, 10, 64)
		if err != nil {
			continue
		}
		results = append(results, PlayerResult{UserID: userID, Score: member.Score})
	}

	players, err := c.store.SMembers(ctx, keyRoomPlayers(roomID))
	if err == nil {
		for _, player := range players {
			if seen[player] {
				continue
			}
			userID, err := strconv.ParseInt(player, 10, 64)
			if err != nil {
				continue
			}
			results = append(results, PlayerResult{UserID: userID})
		}
	}

	for i := range results {
		results[i].Rank = i
		results[i].Reward = rewardFor(i)
	}
	return results
}

// rewardFor maps a 0-based rank to points: 100/80/60/40/20 for the top five,
// a flat participation reward below that.
func rewardFor(rank int) int {
	if rank < len(rewardTable) {
		return rewardTable[rank]
	}
	return participationReward
}
