package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"socketchat/internal/chat"
	"socketchat/internal/config"
	"socketchat/internal/db"
	"socketchat/internal/message"
	"socketchat/internal/middleware"
	"socketchat/internal/room"
	"socketchat/internal/user"
)

// chatStore assembles the hub's persistence collaborator from the message
// and user repositories.
type chatStore struct {
	messages *message.Repository
	users    *user.Repository
}

func (s *chatStore) CreateMessage(ctx context.Context, senderID int, content, room string, isPrivate bool, recipientID int) (*message.Message, error) {
	return s.messages.CreateMessage(ctx, senderID, content, room, isPrivate, recipientID)
}

func (s *chatStore) SetOnline(ctx context.Context, userID int, online bool) error {
	return s.users.SetOnline(ctx, userID, online)
}

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// 2. Connect to Database
	database, err := db.NewDatabase(cfg.DSN)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	log.Println("connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("database schema initialized")

	// 3. Connect to Redis (optional: without it fan-out stays in-process)
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		log.Println("connected to Redis")
	} else {
		log.Println("REDIS_ADDR not set, running single-node")
	}

	// 4. Users
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// 5. Rooms and message history
	roomRepo := room.NewRepository(database.Conn)
	roomHandler := room.NewHandler(roomRepo)

	msgRepo := message.NewRepository(database.Conn)
	msgHandler := message.NewHandler(msgRepo, roomRepo)

	// 6. Real-time hub
	hub := chat.NewHub(redisClient, &chatStore{messages: msgRepo, users: userRepo})
	if redisClient != nil {
		go hub.SubscribeToRedis(context.Background())
	}
	chatHandler := chat.NewHandler(hub)

	authMiddleware := middleware.NewAuthMiddleware(userService)

	// 7. Routes
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Protected (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Post("/logout", userHandler.Logout)
		r.Get("/api/users/search", userHandler.SearchUsers)

		// WebSocket (real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Route("/api/rooms", func(r chi.Router) {
			r.Post("/", roomHandler.Create)
			r.Get("/", roomHandler.List)
			r.Get("/{id}", roomHandler.Get)
			r.Post("/{id}/join", roomHandler.Join)
			r.Post("/{id}/leave", roomHandler.Leave)
			r.Delete("/{id}", roomHandler.Delete)
		})

		r.Route("/api/messages", func(r chi.Router) {
			r.Get("/", msgHandler.GetRoomMessages)
			r.Get("/search", msgHandler.SearchMessages)
			r.Get("/private/{userId}", msgHandler.GetPrivateMessages)
			r.Delete("/{id}", msgHandler.DeleteMessage)
		})
	})

	log.Printf("server starting on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal(err)
	}
}
