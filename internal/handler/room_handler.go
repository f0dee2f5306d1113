package handler

import (
	"errors"
	"net/http"
	"strconv"

	"codeclash/backend/internal/game"
	"codeclash/backend/internal/lock"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

type RoomInput struct {
	Title            string   `json:"title" binding:"required"`
	Password         string   `json:"password"`
	MaxPlayers       int      `json:"max_players" binding:"required,min=2,max=8"`
	TimeLimitSeconds int      `json:"time_limit_seconds" binding:"required,min=10"`
	ProblemCount     int      `json:"problem_count"`
	Mode             string   `json:"mode" binding:"omitempty,oneof=TIME_ATTACK SPEED_RACE"`
	TeamType         string   `json:"team_type" binding:"omitempty,oneof=INDIVIDUAL TEAM"`
	ProblemIDs       []uint   `json:"problem_ids"`
	Tags             []string `json:"tags"`
}

type JoinInput struct {
	Password string `json:"password"`
}

type LeaveInput struct {
	Mode string `json:"mode" binding:"omitempty,oneof=EXIT FORFEIT"`
}

type TeamInput struct {
	Team string `json:"team" binding:"required,oneof=RED BLUE"`
}

type ScoreInput struct {
	Delta float64 `json:"delta" binding:"required,gt=0"`
}

// endregion

// RoomHandler binds the room coordinator's operations to HTTP.
type RoomHandler struct {
	coord *game.Coordinator
}

func NewRoomHandler(coord *game.Coordinator) *RoomHandler {
	return &RoomHandler{coord: coord}
}

// CreateRoom creates a room with the caller as host and joins them.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := c.GetUint("userID")

	var input RoomInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := game.CreateConfig{
		Title:            input.Title,
		Password:         input.Password,
		MaxPlayers:       input.MaxPlayers,
		TimeLimitSeconds: input.TimeLimitSeconds,
		ProblemCount:     input.ProblemCount,
		Mode:             game.Mode(input.Mode),
		TeamType:         game.TeamType(input.TeamType),
		ProblemIDs:       input.ProblemIDs,
		TagKeys:          input.Tags,
	}
	roomID, err := h.coord.CreateRoom(c.Request.Context(), cfg, int64(userID))
	if err != nil {
		respondRoomError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"room_id": roomID})
}

// ListRooms returns summaries of every live room.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.coord.ListRooms(c.Request.Context())
	if err != nil {
		respondRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// GetRoom returns one room's summary.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, err := roomIDParam(c)
	if err != nil {
		return
	}
	room, err := h.coord.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		respondRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// JoinRoom joins (or rejoins) the caller to a room.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID := c.GetUint("userID")
	roomID, err := roomIDParam(c)
	if err != nil {
		return
	}

	// Body is optional; only secret rooms need a password.
	var input JoinInput
	_ = c.ShouldBindJSON(&input)

	if err := h.coord.Join(c.Request.Context(), roomID, int64(userID), input.Password); err != nil {
		respondRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Joined room successfully"})
}

// LeaveRoom removes the caller from a room (EXIT by default, FORFEIT on request).
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID := c.GetUint("userID")
	roomID, err := roomIDParam(c)
	if err != nil {
		return
	}

	var input LeaveInput
	_ = c.ShouldBindJSON(&input)
	mode := game.LeaveExit
	if input.Mode == string(game.LeaveForfeit) {
		mode = game.LeaveForfeit
	}

	if err := h.coord.Leave(c.Request.Context(), roomID, int64(userID), mode); err != nil {
		respondRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left room successfully"})
}

// ToggleReady flips the caller's ready flag.
func (h *RoomHandler) ToggleReady(c *gin.Context) {
	userID := c.GetUint("userID")
	roomID, err := roomIDParam(c)
	if err != nil {
		return
	}
	if err := h.coord.ToggleReady(c.Request.Context(), roomID, int64(userID)); err != nil {
		respondRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ready state toggled"})
}

// ChangeTeam moves the caller to the requested team.
func (h *RoomHandler) ChangeTeam(c *gin.Context) {
	userID := c.GetUint("userID")
	roomID, err := roomIDParam(c)
	if err != nil {
		return
	}

	var input TeamInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.coord.ChangeTeam(c.Request.Context(), roomID, int64(userID), game.Team(input.Team)); err != nil {
		respondRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Team changed"})
}

// KickMember removes a member from the room. Host only.
func (h *RoomHandler) KickMember(c *gin.Context) {
	callerID := c.GetUint("userID")
	roomID, err := roomIDParam(c)
	if err != nil {
		return
	}
	targetID, err := strconv.ParseInt(c.Param("userID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if err := h.coord.Kick(c.Request.Context(), roomID, int64(callerID), targetID); err != nil {
		respondRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member kicked successfully"})
}

// StartGame moves the room into PLAYING. Host only, all members ready.
func (h *RoomHandler) StartGame(c *gin.Context) {
	userID := c.GetUint("userID")
	roomID, err := roomIDParam(c)
	if err != nil {
		return
	}
	if err := h.coord.StartGame(c.Request.Context(), roomID, int64(userID)); err != nil {
		respondRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Game started"})
}

// EndGame terminates the match and settles rewards. Host only.
func (h *RoomHandler) EndGame(c *gin.Context) {
	userID := c.GetUint("userID")
	roomID, err := roomIDParam(c)
	if err != nil {
		return
	}
	if err := h.coord.EndGame(c.Request.Context(), roomID, int64(userID)); err != nil {
		respondRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Game ended"})
}

// ReportScore credits solve points to the caller's live ranking entry.
func (h *RoomHandler) ReportScore(c *gin.Context) {
	userID := c.GetUint("userID")
	roomID, err := roomIDParam(c)
	if err != nil {
		return
	}

	var input ScoreInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.coord.ReportScore(c.Request.Context(), roomID, int64(userID), input.Delta); err != nil {
		respondRoomError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Score recorded"})
}

func roomIDParam(c *gin.Context) (int64, error) {
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room ID"})
		return 0, err
	}
	return roomID, nil
}

// respondRoomError maps the coordinator's error taxonomy to HTTP. Only the
// lock timeout is marked retryable.
func respondRoomError(c *gin.Context, err error) {
	var transitionErr *game.TransitionError
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
	case errors.Is(err, game.ErrBadPassword):
		c.JSON(http.StatusForbidden, gin.H{"error": "Wrong room password"})
	case errors.Is(err, game.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the host can do this"})
	case errors.Is(err, game.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target user"})
	case errors.Is(err, game.ErrRoomNotJoinable):
		c.JSON(http.StatusConflict, gin.H{"error": "Room already started or ended"})
	case errors.Is(err, game.ErrRoomFull):
		c.JSON(http.StatusConflict, gin.H{"error": "Room is full"})
	case errors.Is(err, game.ErrAlreadyInRoom):
		c.JSON(http.StatusConflict, gin.H{"error": "Already in another room"})
	case errors.Is(err, game.ErrTeamFull):
		c.JSON(http.StatusConflict, gin.H{"error": "Team is full"})
	case errors.Is(err, game.ErrRoomNotPlaying):
		c.JSON(http.StatusConflict, gin.H{"error": "Room is not playing"})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{"error": transitionErr.Error()})
	case errors.Is(err, lock.ErrLockTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     "Another operation is in progress, retry",
			"retryable": true,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
