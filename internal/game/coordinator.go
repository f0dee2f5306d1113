package game

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"codeclash/backend/internal/lock"
	"codeclash/backend/internal/store"
)

// Coordinator is the single owner of room state. Every mutating operation
// acquires the room's lock before touching the store, which is what makes
// multi-key updates look atomic within one room.
type Coordinator struct {
	store  store.Store
	locker lock.Locker
	pub    Publisher
	users  UserDirectory
	ledger RewardLedger
	enrich Enricher
	log    zerolog.Logger

	// now is swappable so lifecycle timing is testable.
	now func() time.Time
}

func NewCoordinator(
	st store.Store,
	locker lock.Locker,
	pub Publisher,
	users UserDirectory,
	ledger RewardLedger,
	enrich Enricher,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		store:  st,
		locker: locker,
		pub:    pub,
		users:  users,
		ledger: ledger,
		enrich: enrich,
		log:    logger,
		now:    time.Now,
	}
}

// CreateRoom allocates a room id, writes the config, joins the creator and
// force-readies them. Returns the new room id.
func (c *Coordinator) CreateRoom(ctx context.Context, cfg CreateConfig, hostID int64) (int64, error) {
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = 4
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeTimeAttack
	}
	if cfg.TeamType == "" {
		cfg.TeamType = TeamTypeIndividual
	}

	// A user hosts at most one room; reject before allocating any keys so a
	// refused create leaves nothing behind.
	if err := c.ensureNotInRoom(ctx, hostID); err != nil {
		return 0, err
	}

	roomID, err := c.store.Incr(ctx, keyRoomIDSeq)
	if err != nil {
		return 0, err
	}

	info := map[string]string{
		"title":        cfg.Title,
		"maxPlayers":   strconv.Itoa(cfg.MaxPlayers),
		"timeLimit":    strconv.Itoa(cfg.TimeLimitSeconds),
		"problemCount": strconv.Itoa(cfg.ProblemCount),
		"mode":         string(cfg.Mode),
		"teamType":     string(cfg.TeamType),
		"hostId":       strconv.FormatInt(hostID, 10),
	}
	if cfg.Password != "" {
		info["password"] = cfg.Password
	}
	if len(cfg.TagKeys) > 0 {
		info["tags"] = strings.Join(cfg.TagKeys, ",")
	}
	if len(cfg.ProblemIDs) > 0 {
		ids := make([]string, len(cfg.ProblemIDs))
		for i, id := range cfg.ProblemIDs {
			ids[i] = strconv.FormatUint(uint64(id), 10)
		}
		info["problems"] = strings.Join(ids, ",")
	}

	if err := c.store.HSetAll(ctx, keyRoomInfo(roomID), info); err != nil {
		return 0, err
	}
	if err := c.store.Set(ctx, keyRoomStatus(roomID), string(StatusWaiting)); err != nil {
		return 0, err
	}
	if err := c.store.SAdd(ctx, keyRoomIDs, strconv.FormatInt(roomID, 10)); err != nil {
		return 0, err
	}

	err = c.locker.WithLock(ctx, roomID, func() error {
		if err := c.joinLocked(ctx, roomID, hostID, cfg.Password); err != nil {
			return err
		}
		// Host is auto-ready from the moment the room exists.
		return c.store.HSet(ctx, keyRoomReady(roomID), userField(hostID), "true")
	})
	if err != nil {
		// A room whose creator never joined has zero players and no right to
		// exist. Tear the keys down before reporting the failure.
		if cleanupErr := c.store.SRem(ctx, keyRoomIDs, strconv.FormatInt(roomID, 10)); cleanupErr != nil {
			c.log.Error().Err(cleanupErr).Int64("room_id", roomID).Msg("failed to delist unjoined room")
		}
		if cleanupErr := c.store.Del(ctx, roomKeys(roomID)...); cleanupErr != nil {
			c.log.Error().Err(cleanupErr).Int64("room_id", roomID).Msg("failed to clean up unjoined room")
		}
		return 0, err
	}

	c.log.Info().Int64("room_id", roomID).Int64("host_id", hostID).
		Str("mode", string(cfg.Mode)).Str("team_type", string(cfg.TeamType)).
		Msg("room created")
	return roomID, nil
}

// Join adds a user to a room, or reattaches them if they were already a
// member (reconnection). Rejoins keep the user's ready and team state and
// skip the status check, so a player who dropped mid-match can come back.
func (c *Coordinator) Join(ctx context.Context, roomID, userID int64, password string) error {
	return c.locker.WithLock(ctx, roomID, func() error {
		return c.joinLocked(ctx, roomID, userID, password)
	})
}

func (c *Coordinator) joinLocked(ctx context.Context, roomID, userID int64, password string) error {
	info, err := c.roomInfo(ctx, roomID)
	if err != nil {
		return err
	}

	if roomPassword := info["password"]; roomPassword != "" && password != roomPassword {
		return ErrBadPassword
	}

	rejoined, err := c.tryRejoinLocked(ctx, roomID, userID, info)
	if err != nil || rejoined {
		return err
	}

	status, err := c.roomStatus(ctx, roomID)
	if err != nil {
		return err
	}
	if status != StatusWaiting {
		return ErrRoomNotJoinable
	}

	count, err := c.store.SCard(ctx, keyRoomPlayers(roomID))
	if err != nil {
		return err
	}
	if maxPlayers, _ := strconv.Atoi(info["maxPlayers"]); maxPlayers > 0 && count >= int64(maxPlayers) {
		return ErrRoomFull
	}

	if err := c.store.SAdd(ctx, keyRoomPlayers(roomID), userField(userID)); err != nil {
		return err
	}
	if err := c.store.HSet(ctx, keyRoomReady(roomID), userField(userID), "false"); err != nil {
		return err
	}
	if TeamType(info["teamType"]) == TeamTypeTeam {
		if err := c.assignTeamLocked(ctx, roomID, userID); err != nil {
			return err
		}
	}
	if err := c.store.Set(ctx, keyUserCurrentGame(userID), strconv.FormatInt(roomID, 10)); err != nil {
		return err
	}

	c.publishEnter(ctx, roomID, userID, info)
	c.broadcastLobbyJoin(ctx, roomID, userID, info)

	c.log.Info().Int64("room_id", roomID).Int64("user_id", userID).Msg("user joined room")
	return nil
}

// tryRejoinLocked detects a reconnection: the user's current-game pointer
// names this room, or the players set still contains them (pointer lost).
// Either way their ready/team state is preserved and ENTER is re-emitted.
func (c *Coordinator) tryRejoinLocked(ctx context.Context, roomID, userID int64, info map[string]string) (bool, error) {
	roomIDStr := strconv.FormatInt(roomID, 10)

	current, err := c.store.Get(ctx, keyUserCurrentGame(userID))
	switch {
	case err == nil:
		if current == roomIDStr {
			if err := c.ensureTeamLocked(ctx, roomID, userID, info); err != nil {
				return false, err
			}
			c.publishEnter(ctx, roomID, userID, info)
			c.log.Info().Int64("room_id", roomID).Int64("user_id", userID).Msg("user rejoined room")
			return true, nil
		}
		// Pointer names another room but the players set says this one:
		// repair the pointer and treat it as a rejoin.
		inRoom, err := c.store.SIsMember(ctx, keyRoomPlayers(roomID), userField(userID))
		if err != nil {
			return false, err
		}
		if inRoom {
			if err := c.store.Set(ctx, keyUserCurrentGame(userID), roomIDStr); err != nil {
				return false, err
			}
			if err := c.ensureTeamLocked(ctx, roomID, userID, info); err != nil {
				return false, err
			}
			c.publishEnter(ctx, roomID, userID, info)
			return true, nil
		}
		return false, ErrAlreadyInRoom

	case errors.Is(err, store.ErrKeyNotFound):
		inRoom, err := c.store.SIsMember(ctx, keyRoomPlayers(roomID), userField(userID))
		if err != nil {
			return false, err
		}
		if !inRoom {
			return false, nil
		}
		if err := c.store.Set(ctx, keyUserCurrentGame(userID), roomIDStr); err != nil {
			return false, err
		}
		if err := c.ensureTeamLocked(ctx, roomID, userID, info); err != nil {
			return false, err
		}
		c.publishEnter(ctx, roomID, userID, info)
		c.log.Info().Int64("room_id", roomID).Int64("user_id", userID).Msg("user rejoined room")
		return true, nil

	default:
		return false, err
	}
}

// ensureNotInRoom rejects a user whose current-game pointer names a live
// room. A pointer left dangling by a crashed teardown is cleared instead of
// blocking the user forever.
func (c *Coordinator) ensureNotInRoom(ctx context.Context, userID int64) error {
	current, err := c.store.Get(ctx, keyUserCurrentGame(userID))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	roomID, err := strconv.ParseInt(current, 10, 64)
	if err != nil {
		return c.store.Del(ctx, keyUserCurrentGame(userID))
	}
	if _, err := c.roomInfo(ctx, roomID); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return c.store.Del(ctx, keyUserCurrentGame(userID))
		}
		return err
	}
	return ErrAlreadyInRoom
}

// assignTeamLocked puts the user on the smaller team; ties go to RED.
func (c *Coordinator) assignTeamLocked(ctx context.Context, roomID, userID int64) error {
	teams, err := c.store.HGetAll(ctx, keyRoomTeams(roomID))
	if err != nil {
		return err
	}
	var red, blue int
	for _, team := range teams {
		switch Team(team) {
		case TeamRed:
			red++
		case TeamBlue:
			blue++
		}
	}
	assigned := TeamRed
	if blue < red {
		assigned = TeamBlue
	}
	return c.store.HSet(ctx, keyRoomTeams(roomID), userField(userID), string(assigned))
}

func (c *Coordinator) ensureTeamLocked(ctx context.Context, roomID, userID int64, info map[string]string) error {
	if TeamType(info["teamType"]) != TeamTypeTeam {
		return nil
	}
	_, err := c.store.HGet(ctx, keyRoomTeams(roomID), userField(userID))
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrKeyNotFound) {
		return err
	}
	return c.assignTeamLocked(ctx, roomID, userID)
}

// ListRooms returns summaries of every live room.
func (c *Coordinator) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	ids, err := c.store.SMembers(ctx, keyRoomIDs)
	if err != nil {
		return nil, err
	}
	summaries := make([]RoomSummary, 0, len(ids))
	for _, idStr := range ids {
		roomID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		summary, err := c.GetRoom(ctx, roomID)
		if err != nil {
			// Room was deleted between the listing and the read.
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetRoom returns the summary for a single room.
func (c *Coordinator) GetRoom(ctx context.Context, roomID int64) (RoomSummary, error) {
	info, err := c.roomInfo(ctx, roomID)
	if err != nil {
		return RoomSummary{}, err
	}
	status, err := c.roomStatus(ctx, roomID)
	if err != nil {
		return RoomSummary{}, err
	}
	count, err := c.store.SCard(ctx, keyRoomPlayers(roomID))
	if err != nil {
		return RoomSummary{}, err
	}

	maxPlayers, _ := strconv.Atoi(info["maxPlayers"])
	timeLimit, _ := strconv.Atoi(info["timeLimit"])
	problemCount, _ := strconv.Atoi(info["problemCount"])
	hostID, _ := strconv.ParseInt(info["hostId"], 10, 64)

	return RoomSummary{
		ID:             roomID,
		Title:          info["title"],
		Secret:         info["password"] != "",
		Status:         status,
		MaxPlayers:     maxPlayers,
		CurrentPlayers: int(count),
		TimeLimit:      timeLimit,
		ProblemCount:   problemCount,
		Mode:           Mode(info["mode"]),
		TeamType:       TeamType(info["teamType"]),
		HostID:         hostID,
	}, nil
}

func (c *Coordinator) roomInfo(ctx context.Context, roomID int64) (map[string]string, error) {
	info, err := c.store.HGetAll(ctx, keyRoomInfo(roomID))
	if err != nil {
		return nil, err
	}
	if len(info) == 0 {
		return nil, ErrRoomNotFound
	}
	return info, nil
}

// roomStatus reads the room's lifecycle state. A missing status key with an
// existing start-time key means the status was lost mid-match; treat the
// room as PLAYING so disconnects stay soft.
func (c *Coordinator) roomStatus(ctx context.Context, roomID int64) (Status, error) {
	raw, err := c.store.Get(ctx, keyRoomStatus(roomID))
	if err == nil {
		return Status(raw), nil
	}
	if !errors.Is(err, store.ErrKeyNotFound) {
		return "", err
	}
	started, err := c.store.Exists(ctx, keyRoomStart(roomID))
	if err != nil {
		return "", err
	}
	if started {
		return StatusPlaying, nil
	}
	return StatusWaiting, nil
}

func userField(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
