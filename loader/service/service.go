// Package service runs the bulk ingestion worker: one goroutine watches
// the drop directory, one runs the pipeline per file, documents land in
// the shared store under a configured service account and ACL.
package service

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"paperpulse/ingest"
	"paperpulse/loader/internal"
	"paperpulse/model"
	"paperpulse/store"
	"paperpulse/types"
)

type Service struct {
	logger   *slog.Logger
	store    store.Storer
	watcher  *internal.Watcher
	ingestor *ingest.Ingestor

	uploader    *types.User
	accessRoles []types.Role
}

func New(storer store.Storer, embedder model.EmbedderInterface, cfg types.Config, uploader *types.User, accessRoles []types.Role) *Service {
	return &Service{
		logger:      slog.Default(),
		store:       storer,
		watcher:     internal.NewWatcher(cfg),
		ingestor:    ingest.New(storer, embedder, cfg.ChunkSize, cfg.ChunkOverlap),
		uploader:    uploader,
		accessRoles: accessRoles,
	}
}

func (s *Service) Stop() {
	s.logger.Info("Loader Service stopped")
}

func (s *Service) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileChan := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.watcher.WatchFile(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.processFiles(ctx, fileChan)
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)

	<-sigch
	log.Println("Received shutdown signal, shutting down gracefully...")

	cancel()
	signal.Stop(sigch)
	close(sigch)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All goroutines stopped successfully")
	case <-shutdownCtx.Done():
		log.Println("Timeout waiting for goroutines to stop, forcing shutdown...")
	}

	s.Stop()
}

func (s *Service) processFiles(ctx context.Context, fileChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case filePath, ok := <-fileChan:
			if !ok {
				return
			}

			fmt.Printf("Processing file: %s\n", filePath)
			doc, err := s.ingestor.IngestPDF(ctx, ingest.Request{
				Path:        filePath,
				Uploader:    s.uploader.Username,
				Role:        s.uploader.Role,
				Department:  s.uploader.Department,
				AccessRoles: s.accessRoles,
			})

			if ctx.Err() != nil {
				// Leave the file in place so the next run picks it up.
				s.watcher.Done(filePath)
				return
			}

			if err != nil {
				log.Printf("[LOADER] error processing %s: %v", filePath, err)
				s.watcher.MoveToArchive(filePath, false)
			} else {
				s.logger.Info("document ingested", "id", doc.ID, "title", doc.Title)
				s.watcher.MoveToArchive(filePath, true)
			}
			s.watcher.Done(filePath)
		}
	}
}
