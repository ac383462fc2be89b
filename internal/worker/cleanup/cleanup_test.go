package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

// --- モック定義 ---

type mockRefs struct {
	urls []string
	err  error
}

func (m *mockRefs) ListImageURLs(ctx context.Context) ([]string, error) {
	return m.urls, m.err
}

type mockRecorder struct {
	counts []int
}

func (m *mockRecorder) RecordOrphansRemoved(count int) {
	m.counts = append(m.counts, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// writeFile はmodTimeを指定してファイルを作成する。
func writeFile(t *testing.T, dir, name string, modTime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatal(err)
	}
}

func remaining(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func newJob(refs *mockRefs, dir string, buf *bytes.Buffer, rec *mockRecorder) *CleanupJob {
	job := NewCleanupJob(refs, dir, "/uploads/products", newTestLogger(buf), rec)
	job.now = func() time.Time { return testNow }
	return job
}

func TestNewCleanupJob_DefaultGrace(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockRefs{}, t.TempDir(), "/uploads/products/", newTestLogger(&buf), nil)
	if job.Grace != 24*time.Hour {
		t.Errorf("Grace = %v, want 24h", job.Grace)
	}
}

func TestRun_RemovesOnlyStaleUnreferencedFiles(t *testing.T) {
	dir := t.TempDir()
	old := testNow.Add(-48 * time.Hour)
	fresh := testNow.Add(-time.Hour)

	writeFile(t, dir, "kept.png", old)
	writeFile(t, dir, "thumb_kept.jpg", old)
	writeFile(t, dir, "orphan.jpg", old)
	writeFile(t, dir, "thumb_orphan.jpg", old)
	writeFile(t, dir, "just-uploaded.png", fresh)
	writeFile(t, dir, ".upload-abandoned", old)
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	refs := &mockRefs{urls: []string{
		"/uploads/products/kept.png",
		"https://cdn.example.com/external.png",
	}}
	rec := &mockRecorder{}
	var buf bytes.Buffer

	if err := newJob(refs, dir, &buf, rec).Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	want := []string{"just-uploaded.png", "kept.png", "subdir", "thumb_kept.jpg"}
	got := remaining(t, dir)
	if len(got) != len(want) {
		t.Fatalf("remaining = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("remaining = %v, want %v", got, want)
			break
		}
	}

	if len(rec.counts) != 1 || rec.counts[0] != 3 {
		t.Errorf("recorded = %v, want [3]", rec.counts)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if entry["removed_count"] != float64(3) {
		t.Errorf("removed_count = %v, want 3", entry["removed_count"])
	}
}

func TestRun_Idempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orphan.png", testNow.Add(-48*time.Hour))
	var buf bytes.Buffer
	rec := &mockRecorder{}
	job := newJob(&mockRefs{}, dir, &buf, rec)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if len(rec.counts) != 2 || rec.counts[0] != 1 || rec.counts[1] != 0 {
		t.Errorf("recorded = %v, want [1 0]", rec.counts)
	}
}

func TestRun_MissingDirectory_IsNotAnError(t *testing.T) {
	var buf bytes.Buffer
	job := newJob(&mockRefs{}, filepath.Join(t.TempDir(), "absent"), &buf, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestRun_ReferenceListError_DeletesNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "maybe-used.png", testNow.Add(-48*time.Hour))
	var buf bytes.Buffer
	refsErr := errors.New("db down")

	err := newJob(&mockRefs{err: refsErr}, dir, &buf, nil).Run(context.Background())
	if !errors.Is(err, refsErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if got := remaining(t, dir); len(got) != 1 {
		t.Errorf("remaining = %v, want file kept", got)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orphan.png", testNow.Add(-48*time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer

	if err := newJob(&mockRefs{}, dir, &buf, nil).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
