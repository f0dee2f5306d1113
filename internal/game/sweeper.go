package game

import (
	"context"
	"strconv"
	"time"
)

// Sweeper periodically force-finishes matches that exceeded their time
// budget and reaps rooms that have been finished long enough. Each forced end
// goes through the coordinator's ordinary locked end path, so a race with a
// user-initiated end resolves as an END->END no-op.
type Sweeper struct {
	coord    *Coordinator
	interval time.Duration
}

func NewSweeper(coord *Coordinator, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{coord: coord, interval: interval}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.coord.log.Info().Dur("interval", s.interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.coord.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep scans every live room once. Errors on one room are logged and never
// halt the sweep over the rest.
func (s *Sweeper) Sweep(ctx context.Context) {
	ids, err := s.coord.store.SMembers(ctx, keyRoomIDs)
	if err != nil {
		s.coord.log.Error().Err(err).Msg("sweep: failed to list rooms")
		return
	}

	var ended, reaped int
	for _, idStr := range ids {
		roomID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		status, err := s.coord.roomStatus(ctx, roomID)
		if err != nil {
			s.coord.log.Error().Err(err).Int64("room_id", roomID).Msg("sweep: room check failed")
			continue
		}

		switch status {
		case StatusPlaying:
			overdue, err := s.checkOverdue(ctx, roomID)
			if err != nil {
				s.coord.log.Error().Err(err).Int64("room_id", roomID).Msg("sweep: room check failed")
				continue
			}
			if !overdue {
				continue
			}
			if err := s.coord.ForceEnd(ctx, roomID); err != nil {
				s.coord.log.Error().Err(err).Int64("room_id", roomID).Msg("sweep: force end failed")
				continue
			}
			ended++

		case StatusEnd:
			ok, err := s.coord.ReapEnded(ctx, roomID, endedRoomRetentionSeconds*time.Second)
			if err != nil {
				s.coord.log.Error().Err(err).Int64("room_id", roomID).Msg("sweep: reap failed")
				continue
			}
			if ok {
				reaped++
			}
		}
	}
	if ended > 0 {
		s.coord.log.Info().Int("ended", ended).Msg("sweep finished overdue rooms")
	}
	if reaped > 0 {
		s.coord.log.Info().Int("reaped", reaped).Msg("sweep reaped finished rooms")
	}
}

// checkOverdue reports whether a PLAYING room has exceeded its budget:
// TIME_ATTACK rooms get their configured limit plus a small grace buffer for
// client countdown skew, SPEED_RACE rooms get a hard four-hour ceiling.
func (s *Sweeper) checkOverdue(ctx context.Context, roomID int64) (bool, error) {
	startRaw, err := s.coord.store.Get(ctx, keyRoomStart(roomID))
	if err != nil {
		return false, err
	}
	startMillis, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil {
		return false, err
	}
	elapsed := s.coord.now().Sub(time.UnixMilli(startMillis))

	info, err := s.coord.roomInfo(ctx, roomID)
	if err != nil {
		return false, err
	}

	switch Mode(info["mode"]) {
	case ModeTimeAttack:
		limit, err := strconv.Atoi(info["timeLimit"])
		if err != nil || limit <= 0 {
			limit = 40
		}
		budget := time.Duration(limit+sweepGraceSeconds) * time.Second
		if elapsed >= budget {
			s.coord.log.Info().Int64("room_id", roomID).
				Dur("elapsed", elapsed).Int("limit_seconds", limit).Msg("time attack limit reached")
			return true, nil
		}
	case ModeSpeedRace:
		if elapsed >= speedRaceCeilingSeconds*time.Second {
			s.coord.log.Info().Int64("room_id", roomID).
				Dur("elapsed", elapsed).Msg("speed race ceiling reached")
			return true, nil
		}
	}
	return false, nil
}
