package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

const (
	auditLogMaxOnDisk   = 5000
	auditLogMaxInMemory = 10000
)

// auditEvent is a single recorded mutation, persisted as one JSONL line.
type auditEvent struct {
	Action    string    `json:"action"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"ts"`
}

// auditLog persists mutation events to a JSONL file and keeps them in
// memory for the recent-activity block on the index page.
type auditLog struct {
	mu       sync.RWMutex
	file     *os.File
	events   []auditEvent
	filePath string
}

func newAuditLog(filePath string) (*auditLog, error) {
	f, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open audit log: %w", err)
	}
	al := &auditLog{file: f, filePath: filePath}
	if err := al.load(); err != nil {
		f.Close()
		return nil, err
	}
	return al, nil
}

func (al *auditLog) load() error {
	al.file.Seek(0, 0)
	scanner := bufio.NewScanner(al.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	var events []auditEvent
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var evt auditEvent
		if err := json.Unmarshal(line, &evt); err != nil {
			log.Printf("Warning: skipping malformed audit line: %v", err)
			continue
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading audit log: %w", err)
	}
	if len(events) > auditLogMaxOnDisk {
		events = events[len(events)-auditLogMaxOnDisk:]
		al.rewrite(events)
	}
	al.events = events
	return nil
}

// rewrite replaces the audit file with the given events (called during load, single-threaded).
func (al *auditLog) rewrite(events []auditEvent) {
	tmpPath := al.filePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		log.Printf("Warning: cannot rewrite audit log: %v", err)
		return
	}
	w := bufio.NewWriter(f)
	for _, evt := range events {
		if data, err := json.Marshal(evt); err == nil {
			w.Write(data)
			w.WriteByte('\n')
		}
	}
	w.Flush()
	f.Sync()
	f.Close()

	al.file.Close()
	if err := os.Rename(tmpPath, al.filePath); err != nil {
		log.Printf("Warning: cannot rename audit log: %v", err)
		os.Remove(tmpPath)
	}
	reopened, err := os.OpenFile(al.filePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("Warning: cannot reopen audit log after rewrite: %v", err)
		return
	}
	al.file = reopened
}

func (al *auditLog) append(event auditEvent) error {
	al.mu.Lock()
	defer al.mu.Unlock()
	if al.file == nil {
		return fmt.Errorf("audit log is closed")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := al.file.Write(data); err != nil {
		return err
	}
	al.events = append(al.events, event)
	if len(al.events) > auditLogMaxInMemory {
		al.events = al.events[len(al.events)-auditLogMaxOnDisk:]
	}
	return nil
}

// recent returns up to n events, newest first.
func (al *auditLog) recent(n int) []auditEvent {
	al.mu.RLock()
	defer al.mu.RUnlock()
	var out []auditEvent
	for i := len(al.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, al.events[i])
	}
	return out
}

func (al *auditLog) close() error {
	al.mu.Lock()
	defer al.mu.Unlock()
	if al.file != nil {
		err := al.file.Close()
		al.file = nil
		return err
	}
	return nil
}

// recordAudit appends to the global audit log when one is configured.
func recordAudit(action, relPath string) {
	if globalAuditLog == nil {
		return
	}
	evt := auditEvent{Action: action, Path: relPath, Timestamp: time.Now()}
	if err := globalAuditLog.append(evt); err != nil {
		log.Printf("Warning: cannot record audit event: %v", err)
	}
}
