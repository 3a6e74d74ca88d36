package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRunLifecycle(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := Entry{
		ID:         "run-1",
		Objective:  "Write haiku",
		Target:     "claude",
		Techniques: []string{"few_shot", "xml_tagging"},
		Model:      "gemini-3-pro-preview",
		StartedAt:  started,
	}
	if err := j.RunStarted(ctx, entry); err != nil {
		t.Fatalf("RunStarted failed: %v", err)
	}

	got, err := j.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusRunning || got.FinishedAt != nil || got.TotalScore != nil {
		t.Errorf("Unexpected running entry: %+v", got)
	}
	if len(got.Techniques) != 2 || got.Techniques[1] != "xml_tagging" {
		t.Errorf("Techniques not preserved: %v", got.Techniques)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}

	score := 140
	finished := started.Add(90 * time.Second)
	entry.Status = StatusComplete
	entry.TotalScore = &score
	entry.FinishedAt = &finished
	if err := j.RunFinished(ctx, entry); err != nil {
		t.Fatalf("RunFinished failed: %v", err)
	}

	got, _ = j.Get(ctx, "run-1")
	if got.Status != StatusComplete {
		t.Errorf("Expected complete, got %s", got.Status)
	}
	if got.TotalScore == nil || *got.TotalScore != 140 {
		t.Errorf("Expected score 140, got %v", got.TotalScore)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, finished)
	}
}

func TestRunFinishedFailure(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if err := j.RunStarted(ctx, Entry{ID: "r", Objective: "o", Target: "generic", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := j.RunFinished(ctx, Entry{ID: "r", Status: StatusFailed, Error: "drafter stage failed: boom"}); err != nil {
		t.Fatal(err)
	}
	got, _ := j.Get(ctx, "r")
	if got.Error != "drafter stage failed: boom" || got.TotalScore != nil {
		t.Errorf("Unexpected failed entry: %+v", got)
	}
	if got.Techniques != nil {
		t.Errorf("Expected no techniques, got %v", got.Techniques)
	}

	if err := j.RunFinished(ctx, Entry{ID: "ghost", Status: StatusFailed}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown run, got %v", err)
	}
	if _, err := j.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Get, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		e := Entry{ID: fmt.Sprintf("run-%d", i), Objective: "o", Target: "gpt", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := j.RunStarted(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := j.List(ctx, 3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"run-4", "run-3", "run-2"} {
		if entries[i].ID != want {
			t.Errorf("entries[%d] = %s, want %s", i, entries[i].ID, want)
		}
	}

	all, _ := j.List(ctx, 0)
	if len(all) != 5 {
		t.Errorf("Expected default limit to return all 5, got %d", len(all))
	}
}

func TestDuplicateRunIDRejected(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	e := Entry{ID: "dup", Objective: "o", Target: "gpt", StartedAt: time.Now()}
	if err := j.RunStarted(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := j.RunStarted(ctx, e); err == nil {
		t.Error("Expected duplicate id to fail")
	}
}

func TestSchemaVersionAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	version, err := GetSchemaVersion(j.db)
	if err != nil || version != CurrentSchemaVersion {
		t.Errorf("Expected version %d, got %d (%v)", CurrentSchemaVersion, version, err)
	}
	if err := j.RunStarted(context.Background(), Entry{ID: "keep", Objective: "o", Target: "gpt", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	_ = j.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(context.Background(), "keep"); err != nil {
		t.Errorf("Entry lost across reopen: %v", err)
	}
}

func TestMigrationFromVersion1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	stmts := []string{
		`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`,
		`INSERT INTO schema_version (version) VALUES (1)`,
		`CREATE TABLE runs (
			id TEXT PRIMARY KEY, objective TEXT NOT NULL, target TEXT NOT NULL,
			techniques TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL, total_score INTEGER, error TEXT,
			started_at TEXT NOT NULL, finished_at TEXT
		)`,
		`INSERT INTO runs (id, objective, target, status, started_at) VALUES ('old', 'o', 'gpt', 'complete', '2025-12-01T00:00:00Z')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("setup %q: %v", stmt, err)
		}
	}
	_ = db.Close()

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open with migration failed: %v", err)
	}
	defer j.Close()

	got, err := j.Get(context.Background(), "old")
	if err != nil {
		t.Fatalf("Get after migration failed: %v", err)
	}
	if got.Model != "" || got.Status != StatusComplete {
		t.Errorf("Unexpected migrated entry: %+v", got)
	}
	if v, _ := GetSchemaVersion(j.db); v != CurrentSchemaVersion {
		t.Errorf("Expected schema version %d after migration, got %d", CurrentSchemaVersion, v)
	}
}
