package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeclash/backend/internal/game"
	"codeclash/backend/internal/lock"
	"codeclash/backend/internal/store"
)

type nopPublisher struct{}

func (nopPublisher) Publish(string, game.Event) {}

type stubDirectory struct{}

func (stubDirectory) Lookup(_ context.Context, userID int64) (game.UserRecord, error) {
	return game.UserRecord{ID: userID, Nickname: fmt.Sprintf("user%d", userID)}, nil
}

func (stubDirectory) AddLeaguePoints(context.Context, int64, int) error { return nil }

type stubLedger struct{}

func (stubLedger) Append(context.Context, game.RewardEntry) error { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	coord := game.NewCoordinator(
		store.NewMemory(),
		lock.NewLocal(),
		nopPublisher{},
		stubDirectory{},
		stubLedger{},
		nil,
		zerolog.Nop(),
	)
	h := NewRoomHandler(coord)

	router := gin.New()
	// Stand-in for the JWT middleware: the caller names themselves.
	router.Use(func(c *gin.Context) {
		if raw := c.GetHeader("X-User-ID"); raw != "" {
			var id uint
			fmt.Sscanf(raw, "%d", &id)
			c.Set("userID", id)
		}
	})
	router.POST("/rooms", h.CreateRoom)
	router.GET("/rooms", h.ListRooms)
	router.GET("/rooms/:id", h.GetRoom)
	router.POST("/rooms/:id/join", h.JoinRoom)
	router.POST("/rooms/:id/leave", h.LeaveRoom)
	router.POST("/rooms/:id/ready", h.ToggleReady)
	router.DELETE("/rooms/:id/members/:userID", h.KickMember)
	router.POST("/rooms/:id/start", h.StartGame)
	router.POST("/rooms/:id/score", h.ReportScore)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, userID int, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", fmt.Sprintf("%d", userID))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createRoom(t *testing.T, router *gin.Engine, userID int, body map[string]interface{}) int64 {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/rooms", userID, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		RoomID int64 `json:"room_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.RoomID
}

func TestCreateRoomEndpoint(t *testing.T) {
	router := newTestRouter(t)

	t.Run("valid input creates a room", func(t *testing.T) {
		roomID := createRoom(t, router, 1, map[string]interface{}{
			"title":              "open room",
			"max_players":        4,
			"time_limit_seconds": 60,
		})
		assert.Positive(t, roomID)
	})

	t.Run("missing title is a 400", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/rooms", 1, map[string]interface{}{
			"max_players":        4,
			"time_limit_seconds": 60,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown mode is a 400", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/rooms", 1, map[string]interface{}{
			"title":              "bad mode",
			"max_players":        4,
			"time_limit_seconds": 60,
			"mode":               "MARATHON",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestJoinRoomEndpoint(t *testing.T) {
	router := newTestRouter(t)
	roomID := createRoom(t, router, 1, map[string]interface{}{
		"title":              "secret",
		"password":           "pw",
		"max_players":        2,
		"time_limit_seconds": 60,
	})

	t.Run("unknown room is a 404", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/rooms/999/join", 2, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("wrong password is a 403", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/rooms/%d/join", roomID), 2,
			map[string]interface{}{"password": "nope"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("correct password joins", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/rooms/%d/join", roomID), 2,
			map[string]interface{}{"password": "pw"})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("full room is a 409", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/rooms/%d/join", roomID), 3,
			map[string]interface{}{"password": "pw"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestKickEndpoint(t *testing.T) {
	router := newTestRouter(t)
	roomID := createRoom(t, router, 1, map[string]interface{}{
		"title":              "kick me",
		"max_players":        4,
		"time_limit_seconds": 60,
	})
	w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/rooms/%d/join", roomID), 2, nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("non-host kick is a 403", func(t *testing.T) {
		w := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/rooms/%d/members/1", roomID), 2, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("host self-kick is a 400", func(t *testing.T) {
		w := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/rooms/%d/members/1", roomID), 1, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("host kick succeeds", func(t *testing.T) {
		w := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/rooms/%d/members/2", roomID), 1, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestStartAndScoreEndpoints(t *testing.T) {
	router := newTestRouter(t)
	roomID := createRoom(t, router, 1, map[string]interface{}{
		"title":              "solo start",
		"max_players":        4,
		"time_limit_seconds": 60,
	})

	t.Run("score before start is a 409", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/rooms/%d/score", roomID), 1,
			map[string]interface{}{"delta": 10})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("non-host start is a 403", func(t *testing.T) {
		joinW := doJSON(t, router, http.MethodPost, fmt.Sprintf("/rooms/%d/join", roomID), 2, nil)
		require.Equal(t, http.StatusOK, joinW.Code)
		w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/rooms/%d/start", roomID), 2, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("start with an unready member is a 409", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/rooms/%d/start", roomID), 1, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("ready then start then score", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/rooms/%d/ready", roomID), 2, nil)
		require.Equal(t, http.StatusOK, w.Code)
		w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/rooms/%d/start", roomID), 1, nil)
		require.Equal(t, http.StatusOK, w.Code)
		w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/rooms/%d/score", roomID), 2,
			map[string]interface{}{"delta": 10})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("bad room id is a 400", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/rooms/abc/start", 1, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetRoomEndpoint(t *testing.T) {
	router := newTestRouter(t)
	roomID := createRoom(t, router, 1, map[string]interface{}{
		"title":              "visible",
		"max_players":        4,
		"time_limit_seconds": 60,
	})

	w := doJSON(t, router, http.MethodGet, fmt.Sprintf("/rooms/%d", roomID), 1, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var room game.RoomSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
	assert.Equal(t, "visible", room.Title)
	assert.Equal(t, game.StatusWaiting, room.Status)
	assert.Equal(t, int64(1), room.HostID)

	w = doJSON(t, router, http.MethodGet, "/rooms/999", 1, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
