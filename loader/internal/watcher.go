package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"paperpulse/types"
)

// Watcher polls a drop directory and emits file paths once they have
// stopped changing for the configured settle time.
type Watcher struct {
	cfg types.Config

	fileMutex       sync.Mutex
	fileFirstSeen   map[string]time.Time
	filesProcessing map[string]bool
}

func NewWatcher(cfg types.Config) *Watcher {
	if err := createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		fmt.Printf("error creating loader directories: %s\n", err)
	}
	return &Watcher{
		cfg:             cfg,
		fileFirstSeen:   make(map[string]time.Time),
		filesProcessing: make(map[string]bool),
	}
}

func (w *Watcher) WatchFile(ctx context.Context, fileChan chan<- string) {
	fmt.Printf("Start monitoring folder: %s\n", w.cfg.SourceDir)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer fmt.Println("File watcher stopped and cleaned up")

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping file watcher (context cancelled)...")
			return
		case <-ticker.C:
			files, err := os.ReadDir(w.cfg.SourceDir)
			if err != nil {
				fmt.Printf("error while reading source directory: %s\n", err)
				continue
			}

			currentFiles := make(map[string]bool)

			for _, file := range files {
				if file.IsDir() {
					continue
				}

				filePath := filepath.Join(w.cfg.SourceDir, file.Name())
				currentFiles[filePath] = true

				w.fileMutex.Lock()
				if w.filesProcessing[filePath] {
					w.fileMutex.Unlock()
					continue
				}

				if _, exists := w.fileFirstSeen[filePath]; !exists {
					w.fileFirstSeen[filePath] = time.Now()
					fmt.Printf("New file detected: %s\n", filePath)
					w.fileMutex.Unlock()
					continue
				}

				firstSeen := w.fileFirstSeen[filePath]
				w.fileMutex.Unlock()

				// Wait until the file has been quiet long enough that
				// the upload is likely complete.
				if time.Since(firstSeen) > w.cfg.MonitoringTime {
					w.fileMutex.Lock()
					w.filesProcessing[filePath] = true
					w.fileMutex.Unlock()

					select {
					case fileChan <- filePath:
					case <-ctx.Done():
						return
					}
				}
			}

			// Drop tracking state for files that vanished.
			w.fileMutex.Lock()
			for filePath := range w.fileFirstSeen {
				if !currentFiles[filePath] {
					delete(w.fileFirstSeen, filePath)
					delete(w.filesProcessing, filePath)
				}
			}
			w.fileMutex.Unlock()
		}
	}
}

// Done clears the in-flight state for a processed file.
func (w *Watcher) Done(filePath string) {
	w.fileMutex.Lock()
	delete(w.filesProcessing, filePath)
	delete(w.fileFirstSeen, filePath)
	w.fileMutex.Unlock()
}

// MoveToArchive copies the file under a dated folder in the archive (or
// the bad dir when ok is false) and removes the original.
func (w *Watcher) MoveToArchive(filePath string, ok bool) {
	destRoot := w.cfg.ArchiveDir
	if !ok {
		destRoot = w.cfg.BadDir
	}

	destDir := filepath.Join(destRoot, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		fmt.Printf("error creating directory: %s\n", err)
		return
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))

	// Never clobber an existing archived file with the same name.
	counter := 1
	for {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(destPath)
		baseName := strings.TrimSuffix(filepath.Base(filePath), ext)
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
		counter++
	}

	in, err := os.Open(filePath)
	if err != nil {
		fmt.Printf("error open file: %s\n", err)
		return
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		fmt.Printf("error create file: %s\n", err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		fmt.Printf("error moving file to archive: %s\n", err)
		return
	}

	fmt.Printf("File moved to archive: %s\n", destPath)
	in.Close()
	os.Remove(filePath)
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
