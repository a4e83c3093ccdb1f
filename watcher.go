package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change notifications are coalesced so an editor writing temp files and
// renaming does not trigger a reload per syscall.
const watchDebounce = 100 * time.Millisecond

var (
	clients      = make(map[chan string]bool)
	clientsMutex sync.RWMutex

	reloadBuffer = newEventBuffer(50)
)

// watcherManager manages the directory watcher with proper cleanup
type watcherManager struct {
	mu      sync.Mutex
	current *fsnotify.Watcher
	cancel  context.CancelFunc
}

// watchDirectory starts watching rootDir and all its subdirectories.
// Called once at startup; close tears it down at shutdown.
func (m *watcherManager) watchDirectory(rootDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	if m.current != nil {
		m.current.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return err
	}

	if err := watcher.Add(rootDir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			log.Printf("Failed to close watcher after add error: %v", closeErr)
		}
		cancel()
		return err
	}

	dirs, err := collectWatchDirs(rootDir)
	if err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			log.Printf("Failed to close watcher after directory walk: %v", closeErr)
		}
		cancel()
		return fmt.Errorf("directory walk failed: %w", err)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			log.Printf("Warning: cannot watch directory %s: %v", dir, err)
		}
	}

	m.current = watcher
	m.cancel = cancel
	go watchLoop(ctx, watcher)
	return nil
}

func (m *watcherManager) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	if m.current != nil {
		m.current.Close()
	}
}

// collectWatchDirs walks the tree below rootDir, skipping hidden and
// excluded directories.
func collectWatchDirs(rootDir string) ([]string, error) {
	var dirs []string
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() || path == rootDir {
			return nil
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") || excludedDirs[name] {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dirs, nil
}

// watchLoop forwards filesystem events to SSE clients. New directories are
// registered on the fly; changes are debounced into one reload message.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") || excludedDirs[name] {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						log.Printf("Warning: cannot watch new directory %s: %v", event.Name, err)
					}
				}
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				pending = true
				debounce.Reset(watchDebounce)
			}

		case <-debounce.C:
			if pending {
				pending = false
				notifyReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Directory watcher error: %v", err)
		}
	}
}

// reloadRecord stores a single SSE event for Last-Event-ID replay.
type reloadRecord struct {
	id   uint64
	data string
}

// eventBuffer keeps a bounded window of recent SSE events so clients that
// reconnect can catch up instead of missing changes.
type eventBuffer struct {
	mu      sync.RWMutex
	events  []reloadRecord
	counter uint64
	maxSize int
}

func newEventBuffer(maxSize int) *eventBuffer {
	return &eventBuffer{
		events:  make([]reloadRecord, 0, maxSize),
		maxSize: maxSize,
	}
}

// add assigns the next event ID, stores the event, and returns the ID.
func (eb *eventBuffer) add(data string) uint64 {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.counter++
	if len(eb.events) >= eb.maxSize {
		eb.events = eb.events[1:]
	}
	eb.events = append(eb.events, reloadRecord{id: eb.counter, data: data})
	return eb.counter
}

// getAfter returns all buffered events with IDs greater than lastID.
func (eb *eventBuffer) getAfter(lastID uint64) []reloadRecord {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var out []reloadRecord
	for _, evt := range eb.events {
		if evt.id > lastID {
			out = append(out, evt)
		}
	}
	return out
}

// serveEvents is the SSE endpoint behind live reload.
func serveEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Printf("SSE error: ResponseWriter doesn't support flushing")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientChan := make(chan string, 10)

	clientsMutex.Lock()
	clients[clientChan] = true
	clientsMutex.Unlock()

	defer func() {
		clientsMutex.Lock()
		delete(clients, clientChan)
		clientsMutex.Unlock()
		close(clientChan)
	}()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		if lastID, err := strconv.ParseUint(lastEventID, 10, 64); err == nil {
			missed := reloadBuffer.getAfter(lastID)
			if len(missed) > 0 {
				log.Printf("Replaying %d missed events after ID %d", len(missed), lastID)
				for _, evt := range missed {
					fmt.Fprintf(w, "id: %d\ndata: %s\n\n", evt.id, evt.data)
				}
				flusher.Flush()
			}
		}
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case message := <-clientChan:
			if _, err := fmt.Fprintf(w, "%s\n\n", message); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// notifyReload tells every connected client to refresh.
func notifyReload() {
	broadcast(`{"type":"reload"}`)
}

func broadcast(message string) {
	id := reloadBuffer.add(message)

	clientsMutex.RLock()
	defer clientsMutex.RUnlock()

	formatted := fmt.Sprintf("id: %d\ndata: %s", id, message)
	for clientChan := range clients {
		select {
		case clientChan <- formatted:
		default:
		}
	}
}
