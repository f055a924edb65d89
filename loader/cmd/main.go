package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"paperpulse/loader/service"
	"paperpulse/model"
	"paperpulse/store"
	"paperpulse/types"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	ctx := context.Background()

	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
	pool, err := store.NewPostgresStore(ctx, connStr)
	if err != nil {
		log.Fatal("error to connect to Postgres database ", err)
		return
	}

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables ", err)
		return
	}

	cfg := loadConfig()

	// Bulk-loaded documents are attributed to a real account so the
	// audit trail and ACL defaults stay meaningful.
	uploaderName := os.Getenv("LOADER_USER")
	if uploaderName == "" {
		uploaderName = "admin"
	}
	uploader, err := pool.GetUserByUsername(ctx, uploaderName)
	if err != nil {
		log.Fatalf("loader user %q not found: %v", uploaderName, err)
		return
	}

	acl, err := parseACL(os.Getenv("LOADER_ACCESS_ROLES"))
	if err != nil {
		log.Fatal(err)
		return
	}

	embedder := model.NewEmbedderFromEnv()
	service.New(pool, embedder, cfg, uploader, acl).Run()

	log.Println("Closing database connection pool...")
	if err := pool.Close(); err != nil {
		log.Printf("error closing pool: %v\n", err)
	}
}

func loadConfig() types.Config {
	settle, _ := strconv.Atoi(os.Getenv("LOADER_MONITORING_SECONDS"))
	if settle <= 0 {
		settle = 5
	}
	chunkSize, _ := strconv.Atoi(os.Getenv("CHUNK_SIZE"))
	chunkOverlap, _ := strconv.Atoi(os.Getenv("CHUNK_OVERLAP"))

	sourceDir := os.Getenv("LOADER_SOURCE_DIR")
	if sourceDir == "" {
		sourceDir = "data/in"
	}
	archiveDir := os.Getenv("LOADER_ARCHIVE_DIR")
	if archiveDir == "" {
		archiveDir = "data/archive"
	}
	badDir := os.Getenv("LOADER_BAD_DIR")
	if badDir == "" {
		badDir = "data/bad"
	}

	return types.Config{
		MonitoringTime: time.Duration(settle) * time.Second,
		SourceDir:      sourceDir,
		ArchiveDir:     archiveDir,
		BadDir:         badDir,
		ChunkSize:      chunkSize,
		ChunkOverlap:   chunkOverlap,
	}
}

func parseACL(raw string) ([]types.Role, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var roles []types.Role
	for _, part := range strings.Split(raw, ",") {
		role, err := types.ParseRole(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		log.Fatal("Error loading .env file")
	}
}
