package gitrepo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestReportRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := json.RawMessage(`{"type":"doc","content":[{"type":"paragraph"}]}`)

	if err := svc.EnsureReportRepo("report-1", initial); err != nil {
		t.Fatalf("EnsureReportRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "report-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	// Calling again must be a no-op.
	if err := svc.EnsureReportRepo("report-1", initial); err != nil {
		t.Fatalf("EnsureReportRepo() second call error = %v", err)
	}

	updated := json.RawMessage(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Findings"}]}]}`)
	commit, err := svc.CommitContent("report-1", updated, "Save report content")
	if err != nil {
		t.Fatalf("CommitContent() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	history, err := svc.History("report-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if !strings.HasPrefix(history[0].Message, "Save report content") {
		t.Fatalf("unexpected head message: %q", history[0].Message)
	}

	content, err := svc.GetContentByHash("report-1", commit.Hash)
	if err != nil {
		t.Fatalf("GetContentByHash() error = %v", err)
	}
	if !strings.Contains(string(content), "Findings") {
		t.Fatalf("unexpected content at %s: %s", commit.Hash, content)
	}
}

func TestCommitContentSkipsIdenticalSave(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	content := json.RawMessage(`{"type":"doc","content":[]}`)
	if err := svc.EnsureReportRepo("report-1", content); err != nil {
		t.Fatalf("EnsureReportRepo() error = %v", err)
	}

	first, err := svc.CommitContent("report-1", content, "Save report content")
	if err != nil {
		t.Fatalf("CommitContent() error = %v", err)
	}
	second, err := svc.CommitContent("report-1", content, "Save report content")
	if err != nil {
		t.Fatalf("CommitContent() repeat error = %v", err)
	}
	if first.Hash != second.Hash {
		t.Fatalf("identical saves produced new commit: %s != %s", first.Hash, second.Hash)
	}

	history, err := svc.History("report-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
}

func TestCommitContentRejectsInvalidJSON(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureReportRepo("report-1", nil); err != nil {
		t.Fatalf("EnsureReportRepo() error = %v", err)
	}
	if _, err := svc.CommitContent("report-1", json.RawMessage(`{not json`), "Save report content"); err == nil {
		t.Fatal("expected error for invalid JSON content")
	}
}

func TestConcurrentCommitsSerialize(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureReportRepo("report-1", json.RawMessage(`{"type":"doc"}`)); err != nil {
		t.Fatalf("EnsureReportRepo() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			content := json.RawMessage(fmt.Sprintf(`{"type":"doc","rev":%d}`, n))
			if _, err := svc.CommitContent("report-1", content, "Save report content"); err != nil {
				t.Errorf("CommitContent() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	history, err := svc.History("report-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) < 2 {
		t.Fatalf("expected multiple history entries, got %d", len(history))
	}
}
