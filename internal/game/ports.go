package game

import "context"

// Publisher fans an event out to every subscriber of a topic. Implementations
// must not block the coordinator on slow consumers.
type Publisher interface {
	Publish(topic string, event Event)
}

// UserRecord is the slice of a persisted user the coordinator needs.
type UserRecord struct {
	ID          int64
	Nickname    string
	ProfileImg  string
	LeaguePoint int
}

// UserDirectory looks up persisted users and credits settlement rewards.
type UserDirectory interface {
	Lookup(ctx context.Context, userID int64) (UserRecord, error)
	AddLeaguePoints(ctx context.Context, userID int64, points int) error
}

// RewardEntry is one immutable line of the reward ledger.
type RewardEntry struct {
	UserID      int64
	Amount      int
	Description string
	Metadata    map[string]interface{}
}

// RewardLedger appends settlement rewards. Entries are keyed by room and rank
// on the caller side, so re-running a stuck settlement is safe.
type RewardLedger interface {
	Append(ctx context.Context, entry RewardEntry) error
}

// Enricher decorates lobby broadcast payloads with catalog titles. It is
// read-only and strictly best-effort: a failed lookup never fails the
// operation that wanted the decoration.
type Enricher interface {
	ProblemTitles(ctx context.Context, problemIDs []uint) []string
	TagNames(ctx context.Context, tagKeys []string) []string
}
