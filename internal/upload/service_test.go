package upload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/noxshop/internal/model"
)

// --- モック定義 ---

// mockGuard はテスト用にループバックへの接続を許可するURLGuard。
type mockGuard struct {
	validateFn func(rawURL string) error
}

func (m *mockGuard) ValidateURL(rawURL string) error {
	if m.validateFn != nil {
		return m.validateFn(rawURL)
	}
	return nil
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

type mockRecorder struct {
	results []string
}

func (m *mockRecorder) RecordUpload(result string) {
	m.results = append(m.results, result)
}

const maxBytes = 10 * 1024 * 1024

func newTestService(t *testing.T) (*Service, string, *mockRecorder) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads", "products")
	rec := &mockRecorder{}
	svc := NewService(Config{
		Dir:            dir,
		URLPrefix:      "/uploads/products/",
		MaxBytes:       maxBytes,
		ThumbnailWidth: 32,
		ImportTimeout:  5 * time.Second,
	}, &mockGuard{}, rec)
	return svc, dir, rec
}

// pngOfSize は有効なPNGの末尾をゼロで埋めてsizeバイトにしたデータを返す。
func pngOfSize(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		img.Set(x, x%48, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	if buf.Len() > size {
		t.Fatalf("encoded png (%d bytes) exceeds requested size %d", buf.Len(), size)
	}
	buf.Write(make([]byte, size-buf.Len()))
	return buf.Bytes()
}

// listFiles はディレクトリ内のファイル名を返す。ディレクトリがなければ空。
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func assertInvalidUpload(t *testing.T, err error) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidUpload {
		t.Fatalf("expected INVALID_UPLOAD, got %v", err)
	}
}

// --- Store ---

func TestStore_Rejections_WriteNothing(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		size        int64
		contentType string
	}{
		{"0バイト", nil, 0, "image/png"},
		{"0バイト（サイズ不明）", nil, -1, "image/png"},
		{"11MB", make([]byte, 11*1024*1024), 11 * 1024 * 1024, "image/png"},
		{"11MB（サイズ不明）", make([]byte, 11*1024*1024), -1, "image/jpeg"},
		{"text/plain", []byte("hello"), 5, "text/plain"},
		{"Content-Typeなし", []byte("hello"), 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, dir, rec := newTestService(t)

			ref, err := svc.Store(context.Background(), bytes.NewReader(tt.data), tt.size, tt.contentType)

			assertInvalidUpload(t, err)
			if ref != "" {
				t.Errorf("ref = %q, want empty", ref)
			}
			if files := listFiles(t, dir); len(files) != 0 {
				t.Errorf("files written on rejection: %v", files)
			}
			if len(rec.results) != 1 || rec.results[0] != ResultRejected {
				t.Errorf("recorded = %v, want [rejected]", rec.results)
			}
		})
	}
}

func TestStore_OneMegabytePNG_IsAcceptedAndResolvable(t *testing.T) {
	svc, dir, rec := newTestService(t)
	data := pngOfSize(t, 1024*1024)

	ref, err := svc.Store(context.Background(), bytes.NewReader(data), int64(len(data)), "image/png")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !strings.HasPrefix(ref, "/uploads/products/") || !strings.HasSuffix(ref, ".png") {
		t.Fatalf("ref = %q, want /uploads/products/<name>.png", ref)
	}

	name := strings.TrimPrefix(ref, "/uploads/products/")
	stored, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("stored file not resolvable: %v", err)
	}
	if !bytes.Equal(stored, data) {
		t.Error("stored bytes differ from upload")
	}

	thumb := ThumbnailPrefix + strings.TrimSuffix(name, ".png") + ".jpg"
	if _, err := os.Stat(filepath.Join(dir, thumb)); err != nil {
		t.Errorf("thumbnail %s not created: %v", thumb, err)
	}
	if len(rec.results) != 1 || rec.results[0] != ResultStored {
		t.Errorf("recorded = %v, want [stored]", rec.results)
	}
}

func TestStore_ExactlyMaxBytes_IsAccepted(t *testing.T) {
	svc, _, _ := newTestService(t)
	data := make([]byte, maxBytes)

	if _, err := svc.Store(context.Background(), bytes.NewReader(data), -1, "image/jpeg; charset=binary"); err != nil {
		t.Fatalf("expected no error at exactly the limit, got %v", err)
	}
}

func TestStore_UndecodableImage_StillStored(t *testing.T) {
	svc, dir, _ := newTestService(t)

	ref, err := svc.Store(context.Background(), strings.NewReader("not really a jpeg"), 17, "image/jpeg")
	if err != nil {
		t.Fatalf("thumbnail failure must not fail the upload, got %v", err)
	}
	if files := listFiles(t, dir); len(files) != 1 {
		t.Errorf("files = %v, want only the original", files)
	}
	if !strings.HasSuffix(ref, ".jpg") {
		t.Errorf("ref = %q, want .jpg extension", ref)
	}
}

func TestStore_GeneratesDistinctNames(t *testing.T) {
	svc, dir, _ := newTestService(t)
	svc.cfg.ThumbnailWidth = 0

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		ref, err := svc.Store(context.Background(), strings.NewReader("x"), 1, "image/png")
		if err != nil {
			t.Fatalf("Store error: %v", err)
		}
		if seen[ref] {
			t.Fatalf("duplicate reference %q", ref)
		}
		seen[ref] = true
	}
	if files := listFiles(t, dir); len(files) != 20 {
		t.Errorf("files = %d, want 20", len(files))
	}
}

func TestStore_NameGeneratorError_LeavesNoFile(t *testing.T) {
	svc, dir, rec := newTestService(t)
	svc.newName = func() (string, error) { return "", errors.New("entropy exhausted") }

	_, err := svc.Store(context.Background(), strings.NewReader("x"), 1, "image/png")
	if err == nil {
		t.Fatal("expected error")
	}
	if files := listFiles(t, dir); len(files) != 0 {
		t.Errorf("files = %v, want none", files)
	}
	if len(rec.results) != 1 || rec.results[0] != ResultFailed {
		t.Errorf("recorded = %v, want [failed]", rec.results)
	}
}

// --- ImportFromURL ---

func TestImportFromURL_StoresFetchedImage(t *testing.T) {
	data := pngOfSize(t, 4096)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer ts.Close()

	svc, dir, rec := newTestService(t)

	ref, err := svc.ImportFromURL(context.Background(), ts.URL+"/coffee.png")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	name := strings.TrimPrefix(ref, "/uploads/products/")
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("imported file missing: %v", err)
	}
	if len(rec.results) != 1 || rec.results[0] != ResultStored {
		t.Errorf("recorded = %v, want [stored]", rec.results)
	}
}

func TestImportFromURL_WrongContentType_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer ts.Close()

	svc, dir, _ := newTestService(t)

	_, err := svc.ImportFromURL(context.Background(), ts.URL)
	assertInvalidUpload(t, err)
	if files := listFiles(t, dir); len(files) != 0 {
		t.Errorf("files = %v, want none", files)
	}
}

func TestImportFromURL_NonOKStatus_ReturnsFetchFailed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	svc, _, _ := newTestService(t)

	_, err := svc.ImportFromURL(context.Background(), ts.URL)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeFetchFailed {
		t.Fatalf("expected FETCH_FAILED, got %v", err)
	}
}

func TestImportFromURL_BlockedByGuard(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.guard = &mockGuard{validateFn: func(string) error { return errors.New("blocked IP address") }}

	_, err := svc.ImportFromURL(context.Background(), "http://169.254.169.254/latest/meta-data/")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSSRFBlocked {
		t.Fatalf("expected SSRF_BLOCKED, got %v", err)
	}
}

func TestImportFromURL_InvalidURL(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, u := range []string{"", "file:///etc/passwd", "not a url"} {
		_, err := svc.ImportFromURL(context.Background(), u)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidURL {
			t.Errorf("ImportFromURL(%q): expected INVALID_URL, got %v", u, err)
		}
	}
}
