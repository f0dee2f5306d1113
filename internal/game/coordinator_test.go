package game

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeclash/backend/internal/lock"
	"codeclash/backend/internal/store"
)

// region --- test doubles ---

type publishedEvent struct {
	Topic string
	Event Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(topic string, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Event: event})
}

func (p *recordingPublisher) byType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) count(eventType string) int {
	return len(p.byType(eventType))
}

type fakeDirectory struct {
	mu         sync.Mutex
	users      map[int64]UserRecord
	points     map[int64]int
	failLookup map[int64]bool
	failCredit map[int64]bool
}

func newFakeDirectory(userIDs ...int64) *fakeDirectory {
	d := &fakeDirectory{
		users:      make(map[int64]UserRecord),
		points:     make(map[int64]int),
		failLookup: make(map[int64]bool),
		failCredit: make(map[int64]bool),
	}
	for _, id := range userIDs {
		d.users[id] = UserRecord{ID: id, Nickname: fmt.Sprintf("user%d", id)}
	}
	return d
}

func (d *fakeDirectory) Lookup(_ context.Context, userID int64) (UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failLookup[userID] {
		return UserRecord{}, errors.New("directory unavailable")
	}
	user, ok := d.users[userID]
	if !ok {
		return UserRecord{}, errors.New("user not found")
	}
	return user, nil
}

func (d *fakeDirectory) AddLeaguePoints(_ context.Context, userID int64, points int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failCredit[userID] {
		return errors.New("credit failed")
	}
	d.points[userID] += points
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []RewardEntry
}

func (l *fakeLedger) Append(_ context.Context, entry RewardEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *fakeLedger) all() []RewardEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RewardEntry(nil), l.entries...)
}

// failingLocker refuses every acquisition, as a contended room would.
type failingLocker struct{}

func (failingLocker) WithLock(context.Context, int64, func() error) error {
	return lock.ErrLockTimeout
}

type fakeEnricher struct{}

func (fakeEnricher) ProblemTitles(_ context.Context, problemIDs []uint) []string {
	out := make([]string, len(problemIDs))
	for i, id := range problemIDs {
		out[i] = fmt.Sprintf("Problem %d", id)
	}
	return out
}

func (fakeEnricher) TagNames(_ context.Context, tagKeys []string) []string {
	return tagKeys
}

type fixture struct {
	coord  *Coordinator
	store  *store.Memory
	pub    *recordingPublisher
	dir    *fakeDirectory
	ledger *fakeLedger
	clock  time.Time
}

func newFixture(t *testing.T, userIDs ...int64) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemory(),
		pub:    &recordingPublisher{},
		dir:    newFakeDirectory(userIDs...),
		ledger: &fakeLedger{},
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.coord = NewCoordinator(f.store, lock.NewLocal(), f.pub, f.dir, f.ledger, fakeEnricher{}, zerolog.Nop())
	f.coord.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// endregion

func TestCreateRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("applies defaults and force-readies the host", func(t *testing.T) {
		f := newFixture(t, 1)
		roomID, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "quick match"}, 1)
		require.NoError(t, err)

		room, err := f.coord.GetRoom(ctx, roomID)
		require.NoError(t, err)
		assert.Equal(t, StatusWaiting, room.Status)
		assert.Equal(t, 4, room.MaxPlayers)
		assert.Equal(t, ModeTimeAttack, room.Mode)
		assert.Equal(t, TeamTypeIndividual, room.TeamType)
		assert.Equal(t, int64(1), room.HostID)
		assert.Equal(t, 1, room.CurrentPlayers)

		ready, err := f.store.HGet(ctx, keyRoomReady(roomID), "1")
		require.NoError(t, err)
		assert.Equal(t, "true", ready)
	})

	t.Run("secret room is flagged without leaking the password", func(t *testing.T) {
		f := newFixture(t, 1)
		roomID, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "private", Password: "hunter2"}, 1)
		require.NoError(t, err)

		room, err := f.coord.GetRoom(ctx, roomID)
		require.NoError(t, err)
		assert.True(t, room.Secret)
	})

	t.Run("hosting a second room while still in one is refused cleanly", func(t *testing.T) {
		f := newFixture(t, 1)
		_, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "first"}, 1)
		require.NoError(t, err)

		_, err = f.coord.CreateRoom(ctx, CreateConfig{Title: "second"}, 1)
		assert.ErrorIs(t, err, ErrAlreadyInRoom)

		// The refused create left nothing behind.
		rooms, err := f.coord.ListRooms(ctx)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, "first", rooms[0].Title)
		ids, err := f.store.SMembers(ctx, keyRoomIDs)
		require.NoError(t, err)
		assert.Len(t, ids, 1)
	})

	t.Run("a pointer to a vanished room does not block hosting", func(t *testing.T) {
		f := newFixture(t, 1)
		require.NoError(t, f.store.Set(ctx, keyUserCurrentGame(1), "999"))

		_, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "fresh"}, 1)
		require.NoError(t, err)
	})

	t.Run("a failed creator join tears the room keys back down", func(t *testing.T) {
		f := newFixture(t, 1)
		// The creator's own join cannot run if the room lock is unavailable.
		coord := NewCoordinator(f.store, failingLocker{}, f.pub, f.dir, f.ledger, fakeEnricher{}, zerolog.Nop())

		_, err := coord.CreateRoom(ctx, CreateConfig{Title: "doomed"}, 1)
		assert.ErrorIs(t, err, lock.ErrLockTimeout)

		rooms, err := coord.ListRooms(ctx)
		require.NoError(t, err)
		assert.Empty(t, rooms)
		ids, err := f.store.SMembers(ctx, keyRoomIDs)
		require.NoError(t, err)
		assert.Empty(t, ids)
		exists, err := f.store.Exists(ctx, keyRoomInfo(1))
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("creation announces the room to the lobby exactly once", func(t *testing.T) {
		f := newFixture(t, 1, 2)
		roomID, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "lobby test"}, 1)
		require.NoError(t, err)
		require.NoError(t, f.coord.Join(ctx, roomID, 2, ""))

		assert.Equal(t, 1, f.pub.count(EventLobbyRoomCreated))
	})
}

func TestJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong password is rejected before anything else", func(t *testing.T) {
		f := newFixture(t, 1, 2)
		roomID, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "secret", Password: "pw"}, 1)
		require.NoError(t, err)

		err = f.coord.Join(ctx, roomID, 2, "wrong")
		assert.ErrorIs(t, err, ErrBadPassword)

		err = f.coord.Join(ctx, roomID, 2, "pw")
		assert.NoError(t, err)
	})

	t.Run("unknown room", func(t *testing.T) {
		f := newFixture(t, 1)
		err := f.coord.Join(ctx, 999, 1, "")
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("full room rejects new joins", func(t *testing.T) {
		f := newFixture(t, 1, 2, 3)
		roomID, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "duo", MaxPlayers: 2}, 1)
		require.NoError(t, err)
		require.NoError(t, f.coord.Join(ctx, roomID, 2, ""))

		err = f.coord.Join(ctx, roomID, 3, "")
		assert.ErrorIs(t, err, ErrRoomFull)
	})

	t.Run("started room rejects new joins", func(t *testing.T) {
		f := newFixture(t, 1, 2)
		roomID := startedRoom(t, f, 1)

		err := f.coord.Join(ctx, roomID, 2, "")
		assert.ErrorIs(t, err, ErrRoomNotJoinable)
	})

	t.Run("user already in another room", func(t *testing.T) {
		f := newFixture(t, 1, 2)
		roomA, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "a"}, 1)
		require.NoError(t, err)
		roomB, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "b"}, 2)
		require.NoError(t, err)
		_ = roomA

		err = f.coord.Join(ctx, roomB, 1, "")
		assert.ErrorIs(t, err, ErrAlreadyInRoom)
	})
}

func TestRejoin(t *testing.T) {
	ctx := context.Background()

	t.Run("rejoin keeps ready state and does not duplicate the member", func(t *testing.T) {
		f := newFixture(t, 1, 2)
		roomID, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "rejoin"}, 1)
		require.NoError(t, err)
		require.NoError(t, f.coord.Join(ctx, roomID, 2, ""))
		require.NoError(t, f.coord.ToggleReady(ctx, roomID, 2))

		require.NoError(t, f.coord.Join(ctx, roomID, 2, ""))

		ready, err := f.store.HGet(ctx, keyRoomReady(roomID), "2")
		require.NoError(t, err)
		assert.Equal(t, "true", ready)
		count, err := f.store.SCard(ctx, keyRoomPlayers(roomID))
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("rejoin works after the match started", func(t *testing.T) {
		f := newFixture(t, 1, 2)
		roomID := startedRoomWith(t, f, 1, 2)

		// Disconnect mid-match, then come back.
		require.NoError(t, f.coord.Leave(ctx, roomID, 2, LeaveDisconnect))
		require.NoError(t, f.coord.Join(ctx, roomID, 2, ""))

		inRoom, err := f.store.SIsMember(ctx, keyRoomPlayers(roomID), "2")
		require.NoError(t, err)
		assert.True(t, inRoom)
	})

	t.Run("stale pointer to another room is repaired", func(t *testing.T) {
		f := newFixture(t, 1, 2)
		roomID, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "repair"}, 1)
		require.NoError(t, err)
		require.NoError(t, f.coord.Join(ctx, roomID, 2, ""))

		// Simulate a pointer corrupted by an earlier crash.
		require.NoError(t, f.store.Set(ctx, keyUserCurrentGame(2), "999"))

		require.NoError(t, f.coord.Join(ctx, roomID, 2, ""))
		pointer, err := f.store.Get(ctx, keyUserCurrentGame(2))
		require.NoError(t, err)
		assert.Equal(t, strconv.FormatInt(roomID, 10), pointer)
	})

	t.Run("lost pointer with surviving membership is a rejoin", func(t *testing.T) {
		f := newFixture(t, 1, 2)
		roomID, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "lost pointer"}, 1)
		require.NoError(t, err)
		require.NoError(t, f.coord.Join(ctx, roomID, 2, ""))
		require.NoError(t, f.store.Del(ctx, keyUserCurrentGame(2)))

		require.NoError(t, f.coord.Join(ctx, roomID, 2, ""))
		pointer, err := f.store.Get(ctx, keyUserCurrentGame(2))
		require.NoError(t, err)
		assert.Equal(t, strconv.FormatInt(roomID, 10), pointer)
	})
}

func TestTeamAssignment(t *testing.T) {
	ctx := context.Background()

	t.Run("joiners land on the smaller team, ties go red", func(t *testing.T) {
		f := newFixture(t, 1, 2, 3)
		roomID, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "teams", MaxPlayers: 8, TeamType: TeamTypeTeam}, 1)
		require.NoError(t, err)

		// Host took RED on the empty-teams tie.
		team, err := f.store.HGet(ctx, keyRoomTeams(roomID), "1")
		require.NoError(t, err)
		assert.Equal(t, string(TeamRed), team)

		require.NoError(t, f.coord.Join(ctx, roomID, 2, ""))
		team, err = f.store.HGet(ctx, keyRoomTeams(roomID), "2")
		require.NoError(t, err)
		assert.Equal(t, string(TeamBlue), team)

		require.NoError(t, f.coord.Join(ctx, roomID, 3, ""))
		team, err = f.store.HGet(ctx, keyRoomTeams(roomID), "3")
		require.NoError(t, err)
		assert.Equal(t, string(TeamRed), team)
	})

	t.Run("switching to a full team is rejected", func(t *testing.T) {
		f := newFixture(t, 1, 2, 3, 4, 5)
		roomID, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "full team", MaxPlayers: 8, TeamType: TeamTypeTeam}, 1)
		require.NoError(t, err)
		for _, id := range []int64{2, 3, 4, 5} {
			require.NoError(t, f.coord.Join(ctx, roomID, id, ""))
		}
		// Pack RED to its cap of four.
		for _, id := range []int64{1, 2, 3, 4} {
			require.NoError(t, f.coord.ChangeTeam(ctx, roomID, id, TeamRed))
		}

		err = f.coord.ChangeTeam(ctx, roomID, 5, TeamRed)
		assert.ErrorIs(t, err, ErrTeamFull)

		// Switching to your own current team is not a capacity violation.
		require.NoError(t, f.coord.ChangeTeam(ctx, roomID, 1, TeamRed))
	})
}

func TestRoomStatusFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	roomID := startedRoom(t, f, 1)

	// Lose the status key mid-match; the surviving start stamp must keep the
	// room PLAYING so disconnects stay soft.
	require.NoError(t, f.store.Del(ctx, keyRoomStatus(roomID)))

	status, err := f.coord.roomStatus(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, status)
}

func TestListRooms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, 2)

	_, err := f.coord.CreateRoom(ctx, CreateConfig{Title: "one"}, 1)
	require.NoError(t, err)
	_, err = f.coord.CreateRoom(ctx, CreateConfig{Title: "two"}, 2)
	require.NoError(t, err)

	rooms, err := f.coord.ListRooms(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}

// startedRoom creates a solo room for hostID and moves it to PLAYING.
func startedRoom(t *testing.T, f *fixture, hostID int64) int64 {
	t.Helper()
	return startedRoomWith(t, f, hostID)
}

// startedRoomWith creates a room, joins and readies the extra members, and
// starts the match.
func startedRoomWith(t *testing.T, f *fixture, hostID int64, members ...int64) int64 {
	t.Helper()
	ctx := context.Background()
	roomID, err := f.coord.CreateRoom(ctx, CreateConfig{
		Title:            "match",
		MaxPlayers:       8,
		TimeLimitSeconds: 40,
	}, hostID)
	require.NoError(t, err)
	for _, id := range members {
		require.NoError(t, f.coord.Join(ctx, roomID, id, ""))
		require.NoError(t, f.coord.ToggleReady(ctx, roomID, id))
	}
	require.NoError(t, f.coord.StartGame(ctx, roomID, hostID))
	return roomID
}
