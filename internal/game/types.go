// Package game implements the real-time match room coordinator: room
// membership, the lifecycle state machine, timeout sweeping and final
// settlement. All room-mutating operations serialize through a per-room lock;
// cross-room operations run in parallel.
package game

// Status is the lifecycle state of a room. It only ever advances.
type Status string

const (
	StatusWaiting Status = "WAITING"
	StatusPlaying Status = "PLAYING"
	StatusEnd     Status = "END"
)

// Mode selects the time-budget rules enforced by the sweeper.
type Mode string

const (
	ModeTimeAttack Mode = "TIME_ATTACK"
	ModeSpeedRace  Mode = "SPEED_RACE"
)

// TeamType selects individual or red/blue team play.
type TeamType string

const (
	TeamTypeIndividual TeamType = "INDIVIDUAL"
	TeamTypeTeam       TeamType = "TEAM"
)

// Team is a side in team play.
type Team string

const (
	TeamRed  Team = "RED"
	TeamBlue Team = "BLUE"
)

// LeaveMode distinguishes how a player departs a room. DISCONNECT during an
// active match is a soft departure (membership preserved for reconnection);
// everything else removes the player for good.
type LeaveMode string

const (
	LeaveExit       LeaveMode = "EXIT"
	LeaveDisconnect LeaveMode = "DISCONNECT"
	LeaveForfeit    LeaveMode = "FORFEIT"
	LeaveKick       LeaveMode = "KICK"
)

const (
	// teamCap is the fixed per-team member limit in team play.
	teamCap = 4

	// sweepGraceSeconds pads the TIME_ATTACK limit to absorb client-side
	// countdown skew before the sweeper force-ends a room.
	sweepGraceSeconds = 5

	// speedRaceCeilingSeconds bounds SPEED_RACE rooms regardless of their
	// configured limit, so an abandoned race cannot live forever.
	speedRaceCeilingSeconds = 4 * 60 * 60

	// endedRoomRetentionSeconds is how long a finished room stays readable
	// before the sweeper reaps it. Soft-departed players never empty an ended
	// room on their own, so this bounds its lifetime.
	endedRoomRetentionSeconds = 10 * 60
)

// rewardTable maps final rank (0-based) to awarded points; ranks past the
// table get the flat participation reward.
var rewardTable = []int{100, 80, 60, 40, 20}

const participationReward = 10

// CreateConfig is the caller-supplied room configuration.
type CreateConfig struct {
	Title            string
	Password         string
	MaxPlayers       int
	TimeLimitSeconds int
	ProblemCount     int
	Mode             Mode
	TeamType         TeamType
	ProblemIDs       []uint
	TagKeys          []string
}

// RoomSummary is the read model served to the lobby and room detail views.
// The password never leaves the store; only the secret flag does.
type RoomSummary struct {
	ID             int64    `json:"roomId"`
	Title          string   `json:"title"`
	Secret         bool     `json:"isSecret"`
	Status         Status   `json:"status"`
	MaxPlayers     int      `json:"maxPlayers"`
	CurrentPlayers int      `json:"currentPlayers"`
	TimeLimit      int      `json:"timeLimit"`
	ProblemCount   int      `json:"problemCount"`
	Mode           Mode     `json:"mode"`
	TeamType       TeamType `json:"teamType"`
	HostID         int64    `json:"hostId"`
}

// PlayerResult is one settled member of a finished room.
type PlayerResult struct {
	UserID int64   `json:"userId"`
	Rank   int     `json:"rank"`
	Score  float64 `json:"score"`
	Reward int     `json:"reward"`
}
