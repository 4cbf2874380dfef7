package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"go-chat-client/internal/backend/chat"
	"go-chat-client/internal/backend/db"
	"go-chat-client/internal/backend/middleware"
	"go-chat-client/internal/backend/user"
)

func main() {
	addr := flag.String("addr", ":8080", "http service address")
	flag.Parse()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("❌ DB_DSN is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("❌ JWT_SECRET is not set")
	}

	database, err := db.NewDatabase(dsn)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	ctx := context.Background()

	// REDIS_ADDR empty means single-instance mode with an in-process
	// broker. Set it to fan events out across instances.
	var broker chat.Broker
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		log.Println("✅ Connected to Redis")
		broker = chat.NewRedisBroker(ctx, redisClient)
	} else {
		log.Println("⚠️ REDIS_ADDR not set, using local broker")
		broker = chat.NewLocalBroker()
	}

	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, jwtSecret)
	userHandler := user.NewHandler(userService)

	chatRepo := chat.NewRepository(database.Conn)
	hub := chat.NewHub(broker, chatRepo)
	go hub.Run(ctx)

	chatHandler := chat.NewHandler(hub, chatRepo)
	auth := middleware.NewAuth(userService)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public
	r.Post("/api/register", userHandler.Register)
	r.Post("/api/login", userHandler.Login)

	// Protected
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)

		r.Get("/ws", chatHandler.ServeWs)

		r.Get("/api/messages/chat-by-chatid", chatHandler.ChatHistory)
		r.Get("/api/contacts/{userId}", func(w http.ResponseWriter, req *http.Request) {
			userHandler.Contacts(w, req, chi.URLParam(req, "userId"))
		})
		r.Get("/api/chats/contacts/{userId}", chatHandler.ChatContacts)
		r.Post("/api/chats/find-or-create", chatHandler.FindOrCreate)
	})

	log.Printf("🚀 Server starting on %s", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal(err)
	}
}
