package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"paperpulse/app/agent"
	"paperpulse/app/api"
	"paperpulse/app/middleware"
	"paperpulse/ingest"
	"paperpulse/model"
	"paperpulse/store"
	"paperpulse/types"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    32 << 20, // PDFs
}

type Server struct {
	listenAddr string
	logger     *slog.Logger
}

func NewServer(addr string) *Server {
	return &Server{
		listenAddr: addr,
		logger:     slog.Default(),
	}
}

func (s *Server) Stop() {
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()

	pool, err := store.NewPostgresStore(ctx, postgresConnStr())
	if err != nil {
		log.Fatal("error to connect to Postgres database ", err)
		return
	}

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables ", err)
		return
	}

	secret := []byte(os.Getenv("SECRET_KEY"))
	if len(secret) == 0 {
		log.Fatal("SECRET_KEY is not set")
		return
	}

	chunkSize, _ := strconv.Atoi(os.Getenv("CHUNK_SIZE"))
	chunkOverlap, _ := strconv.Atoi(os.Getenv("CHUNK_OVERLAP"))

	var (
		embedder  = model.NewEmbedderFromEnv()
		ingestor  = ingest.New(pool, embedder, chunkSize, chunkOverlap)
		retriever = api.NewRetriever(pool, embedder)
		answerer  = agent.NewOllamaAgentFromEnv()

		app             = fiber.New(config)
		checkHandler    = api.NewCheckHandler()
		authHandler     = api.NewAuthHandler(pool, secret)
		userHandler     = api.NewUserHandler(pool)
		documentHandler = api.NewDocumentHandler(pool, ingestor, retriever)
		chatHandler     = api.NewChatHandler(pool, retriever, answerer)
		auditHandler    = api.NewAuditHandler(pool)

		check = app.Group("/check")
		apiv1 = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/auth/login", authHandler.HandleLogin)

	apiv1.Use(middleware.JWTAuth(secret))
	apiv1.Post("/auth/logout", authHandler.HandleLogout)
	apiv1.Post("/users", middleware.RequireRole(types.RoleExecutive), userHandler.HandleCreateUser)
	apiv1.Get("/users", middleware.RequireRole(types.RoleExecutive), userHandler.HandleListUsers)
	apiv1.Post("/documents", middleware.RequireRole(types.RoleExecutive, types.RoleManager), documentHandler.HandleUpload)
	apiv1.Get("/documents/search", documentHandler.HandleSearch)
	apiv1.Delete("/documents/:id", documentHandler.HandleDelete)
	apiv1.Post("/chat", chatHandler.HandleChat)
	apiv1.Get("/audit", middleware.RequireRole(types.RoleExecutive), auditHandler.HandleListAudit)

	app.Use(middleware.PlugStatic("/"))
	app.Static("/", "./public")

	if err := app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
	}
}

func postgresConnStr() string {
	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
}
