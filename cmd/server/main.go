package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"codeclash/backend/internal/auth"
	"codeclash/backend/internal/config"
	"codeclash/backend/internal/database"
	"codeclash/backend/internal/game"
	"codeclash/backend/internal/handler"
	"codeclash/backend/internal/hub"
	"codeclash/backend/internal/lock"
	"codeclash/backend/internal/repo"
	"codeclash/backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func init() {
	config.LoadConfig()
}

func main() {
	// Connect to the database
	database.Connect(config.AppConfig.DatabaseURL)

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Connect to the shared room store
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomStore, err := store.Connect(ctx, config.AppConfig.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer roomStore.Close()

	// Wire the room coordinator
	broadcaster := hub.New(logger)
	coordinator := game.NewCoordinator(
		roomStore,
		lock.NewRedisLocker(roomStore.Client()),
		broadcaster,
		repo.NewUsers(database.DB),
		repo.NewLedger(database.DB),
		repo.NewCatalog(database.DB),
		logger,
	)

	// The sweeper force-ends overdue matches in the background.
	sweepInterval := time.Duration(config.AppConfig.SweepIntervalSeconds) * time.Second
	go game.NewSweeper(coordinator, sweepInterval).Run(ctx)

	roomHandler := handler.NewRoomHandler(coordinator)
	streamHandler := handler.NewStreamHandler(broadcaster)
	socketHandler := handler.NewSocketHandler(coordinator, broadcaster, logger)

	router := gin.Default()

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/register", handler.RegisterUser)
			authRoutes.POST("/login", handler.LoginUser)
		}

		// User routes (protected)
		userRoutes := apiV1.Group("/users")
		userRoutes.Use(auth.AuthMiddleware())
		{
			userRoutes.GET("/me", handler.GetMe)
		}

		// Room browsing is public; identity is attached when a token is sent.
		browseRoutes := apiV1.Group("/rooms")
		browseRoutes.Use(auth.OptionalAuthMiddleware())
		{
			browseRoutes.GET("", roomHandler.ListRooms)
			browseRoutes.GET("/:id", roomHandler.GetRoom)
		}

		// Room operations (protected)
		roomRoutes := apiV1.Group("/rooms")
		roomRoutes.Use(auth.AuthMiddleware())
		{
			roomRoutes.POST("", roomHandler.CreateRoom)
			roomRoutes.POST("/:id/join", roomHandler.JoinRoom)
			roomRoutes.POST("/:id/leave", roomHandler.LeaveRoom)
			roomRoutes.POST("/:id/ready", roomHandler.ToggleReady)
			roomRoutes.POST("/:id/team", roomHandler.ChangeTeam)
			roomRoutes.DELETE("/:id/members/:userID", roomHandler.KickMember)
			roomRoutes.POST("/:id/start", roomHandler.StartGame)
			roomRoutes.POST("/:id/end", roomHandler.EndGame)
			roomRoutes.POST("/:id/score", roomHandler.ReportScore)
			roomRoutes.GET("/:id/events", streamHandler.RoomEvents)
			roomRoutes.GET("/:id/ws", socketHandler.RoomSocket)
		}

		// Lobby stream (protected)
		lobbyRoutes := apiV1.Group("/lobby")
		lobbyRoutes.Use(auth.AuthMiddleware())
		{
			lobbyRoutes.GET("/events", streamHandler.LobbyEvents)
		}

		// Admin routes (protected by auth and admin check)
		adminRoutes := apiV1.Group("/admin")
		adminRoutes.Use(auth.AuthMiddleware(), auth.AdminMiddleware())
		{
			// Tags CRUD
			tags := adminRoutes.Group("/tags")
			{
				tags.POST("", handler.CreateTag)
				tags.GET("", handler.GetTags)
				tags.PUT("/:id", handler.UpdateTag)
				tags.DELETE("/:id", handler.DeleteTag)
			}
		}
	}

	addr := ":" + config.AppConfig.Port
	fmt.Printf("Server is running on %s\n", addr)
	log.Fatal(router.Run(addr))
}
