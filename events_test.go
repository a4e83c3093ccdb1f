package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestAuditLog(t *testing.T) (*auditLog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	al, err := newAuditLog(path)
	if err != nil {
		t.Fatalf("newAuditLog failed: %v", err)
	}
	t.Cleanup(func() { al.close() })
	return al, path
}

func TestAuditLogAppendAndRecent(t *testing.T) {
	al, _ := newTestAuditLog(t)

	for i := 0; i < 3; i++ {
		evt := auditEvent{
			Action:    "save",
			Path:      fmt.Sprintf("file%d.md", i),
			Timestamp: time.Now(),
		}
		if err := al.append(evt); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	recent := al.recent(2)
	if len(recent) != 2 {
		t.Fatalf("recent(2) returned %d events", len(recent))
	}
	if recent[0].Path != "file2.md" || recent[1].Path != "file1.md" {
		t.Errorf("recent order wrong: %v", recent)
	}

	all := al.recent(10)
	if len(all) != 3 {
		t.Errorf("recent(10) returned %d events, want 3", len(all))
	}
}

func TestAuditLogPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	al, err := newAuditLog(path)
	if err != nil {
		t.Fatalf("newAuditLog failed: %v", err)
	}
	al.append(auditEvent{Action: "create", Path: "a.md", Timestamp: time.Now()})
	al.append(auditEvent{Action: "delete", Path: "b.md", Timestamp: time.Now()})
	if err := al.close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := newAuditLog(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.close()

	recent := reopened.recent(10)
	if len(recent) != 2 {
		t.Fatalf("got %d events after reopen, want 2", len(recent))
	}
	if recent[0].Action != "delete" || recent[0].Path != "b.md" {
		t.Errorf("newest event = %+v", recent[0])
	}
	if recent[1].Action != "create" || recent[1].Path != "a.md" {
		t.Errorf("older event = %+v", recent[1])
	}
}

func TestAuditLogSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	good1, _ := json.Marshal(auditEvent{Action: "save", Path: "a.md", Timestamp: time.Now()})
	good2, _ := json.Marshal(auditEvent{Action: "save", Path: "b.md", Timestamp: time.Now()})
	raw := string(good1) + "\nnot json at all\n" + string(good2) + "\n"
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	al, err := newAuditLog(path)
	if err != nil {
		t.Fatalf("newAuditLog failed: %v", err)
	}
	defer al.close()

	if got := len(al.recent(10)); got != 2 {
		t.Errorf("got %d events, want 2 with the malformed line skipped", got)
	}
}

func TestAuditLogTrimsOldEventsOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	total := auditLogMaxOnDisk + 25
	for i := 0; i < total; i++ {
		line, _ := json.Marshal(auditEvent{
			Action:    "save",
			Path:      fmt.Sprintf("f%d.md", i),
			Timestamp: time.Now(),
		})
		f.Write(line)
		f.Write([]byte("\n"))
	}
	f.Close()

	al, err := newAuditLog(path)
	if err != nil {
		t.Fatalf("newAuditLog failed: %v", err)
	}

	if got := len(al.recent(total)); got != auditLogMaxOnDisk {
		t.Errorf("in-memory events = %d, want %d", got, auditLogMaxOnDisk)
	}
	newest := al.recent(1)[0]
	if newest.Path != fmt.Sprintf("f%d.md", total-1) {
		t.Errorf("newest event = %q, trimming dropped the wrong end", newest.Path)
	}
	al.close()

	// The trim also rewrote the file, so a reopen sees the same window.
	reopened, err := newAuditLog(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.close()
	if got := len(reopened.recent(total)); got != auditLogMaxOnDisk {
		t.Errorf("events after rewrite = %d, want %d", got, auditLogMaxOnDisk)
	}
}

func TestAuditLogAppendAfterClose(t *testing.T) {
	al, _ := newTestAuditLog(t)
	al.close()

	err := al.append(auditEvent{Action: "save", Path: "x.md", Timestamp: time.Now()})
	if err == nil {
		t.Error("append after close should fail")
	}
}

func TestRecordAuditNilLog(t *testing.T) {
	old := globalAuditLog
	globalAuditLog = nil
	t.Cleanup(func() { globalAuditLog = old })

	// Must be a no-op, not a panic.
	recordAudit("save", "x.md")
}

func TestRecordAuditWritesThrough(t *testing.T) {
	al, _ := newTestAuditLog(t)

	old := globalAuditLog
	globalAuditLog = al
	t.Cleanup(func() { globalAuditLog = old })

	recordAudit("delete", "gone.md")

	recent := al.recent(1)
	if len(recent) != 1 || recent[0].Action != "delete" || recent[0].Path != "gone.md" {
		t.Errorf("recorded event = %v", recent)
	}
	if recent[0].Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}
