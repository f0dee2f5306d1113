package game

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound reports an id with no backing room.
	ErrRoomNotFound = errors.New("game: room not found")
	// ErrBadPassword reports a wrong or missing password on a secret room.
	ErrBadPassword = errors.New("game: wrong room password")
	// ErrRoomNotJoinable reports a new join on a room that already started.
	ErrRoomNotJoinable = errors.New("game: room already started or ended")
	// ErrRoomFull reports a new join on a room at its player cap.
	ErrRoomFull = errors.New("game: room is full")
	// ErrAlreadyInRoom reports a join while the user is in a different room.
	ErrAlreadyInRoom = errors.New("game: user already in another room")
	// ErrUnauthorized reports a host-only action by a non-host.
	ErrUnauthorized = errors.New("game: only the host may do this")
	// ErrInvalidTarget reports a kick aimed at the caller themselves.
	ErrInvalidTarget = errors.New("game: invalid target user")
	// ErrTeamFull reports a switch to a team at its member cap.
	ErrTeamFull = errors.New("game: team is full")
	// ErrRoomNotPlaying reports a score update outside an active match.
	ErrRoomNotPlaying = errors.New("game: room is not playing")
)

// TransitionError reports a lifecycle transition the state machine forbids.
type TransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("game: invalid transition %s -> %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("game: invalid transition %s -> %s", e.From, e.To)
}
