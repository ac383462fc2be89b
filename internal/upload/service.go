// Package upload は商品画像の検証と保存を提供する。
package upload

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nfnt/resize"

	"github.com/hitoshi/noxshop/internal/model"
	"github.com/hitoshi/noxshop/internal/security"
)

// ThumbnailPrefix はサムネイルファイル名の接頭辞。
const ThumbnailPrefix = "thumb_"

// 画像アップロードの結果（メトリクスのラベル）
const (
	ResultStored   = "stored"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// allowedTypes は受け付けるContent-Typeと保存時の拡張子。
var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// Config は画像保存の設定。
type Config struct {
	Dir            string        // 保存先ディレクトリ
	URLPrefix      string        // 返却する参照の接頭辞（例: /uploads/products）
	MaxBytes       int64         // 1ファイルの最大サイズ
	ThumbnailWidth int           // 0以下の場合はサムネイルを生成しない
	ImportTimeout  time.Duration // URL取り込み時のタイムアウト
}

// Recorder はアップロード結果を外部（メトリクス等）へ通知する。
type Recorder interface {
	RecordUpload(result string)
}

// Service は画像の検証、保存、URLからの取り込みを提供する。
type Service struct {
	cfg      Config
	guard    security.URLGuard
	recorder Recorder
	newName  func() (string, error)
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(cfg Config, guard security.URLGuard, recorder Recorder) *Service {
	cfg.URLPrefix = strings.TrimRight(cfg.URLPrefix, "/")
	return &Service{
		cfg:      cfg,
		guard:    guard,
		recorder: recorder,
		newName:  timeOrderedName,
	}
}

// timeOrderedName は時刻順に並ぶ一意なファイル名（拡張子なし）を生成する。
func timeOrderedName() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Store は画像を検証して保存し、参照（URLPrefix/ファイル名）を返す。
// sizeは申告されたバイト数で、不明な場合は負の値を渡す。
// 空、最大サイズ超過、PNG/JPEG以外のContent-Typeの場合はINVALID_UPLOADエラーを返し、
// ファイルは一切残さない。
func (s *Service) Store(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	ref, err := s.store(ctx, r, size, contentType)
	s.record(err)
	return ref, err
}

func (s *Service) store(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	ext, err := extensionFor(contentType)
	if err != nil {
		return "", err
	}
	if size == 0 {
		return "", model.NewInvalidUploadError("file is empty")
	}
	if size > s.cfg.MaxBytes {
		return "", model.NewInvalidUploadError(fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxBytes))
	}

	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	// 一時ファイルに書き出し、検証が済んでから最終的な名前に変更する
	tmp, err := os.CreateTemp(s.cfg.Dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, io.LimitReader(r, s.cfg.MaxBytes+1))
	closeErr := tmp.Close()
	if err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if closeErr != nil {
		return "", fmt.Errorf("failed to close upload: %w", closeErr)
	}
	if written == 0 {
		return "", model.NewInvalidUploadError("file is empty")
	}
	if written > s.cfg.MaxBytes {
		return "", model.NewInvalidUploadError(fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxBytes))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	base, err := s.newName()
	if err != nil {
		return "", fmt.Errorf("failed to generate filename: %w", err)
	}
	name := base + ext
	finalPath := filepath.Join(s.cfg.Dir, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	committed = true

	slog.Info("image stored",
		slog.String("file", name),
		slog.Int64("bytes", written),
	)

	if s.cfg.ThumbnailWidth > 0 {
		if err := s.writeThumbnail(finalPath, ext, base); err != nil {
			slog.Warn("thumbnail generation failed",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
		}
	}

	return s.cfg.URLPrefix + "/" + name, nil
}

// extensionFor は申告されたContent-Typeが許可されていれば拡張子を返す。
func extensionFor(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", model.NewInvalidUploadError("missing or malformed content type")
	}
	ext, ok := allowedTypes[strings.ToLower(mediaType)]
	if !ok {
		return "", model.NewInvalidUploadError(fmt.Sprintf("content type %q is not allowed", mediaType))
	}
	return ext, nil
}

// writeThumbnail は保存済み画像を幅ThumbnailWidthに縮小し、thumb_<base>.jpg として保存する。
func (s *Service) writeThumbnail(srcPath, ext, base string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	var img image.Image
	switch ext {
	case ".png":
		img, err = png.Decode(src)
	default:
		img, err = jpeg.Decode(src)
	}
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	width := uint(s.cfg.ThumbnailWidth)
	if b := img.Bounds(); b.Dx() <= s.cfg.ThumbnailWidth {
		width = uint(b.Dx())
	}
	thumb := resize.Resize(width, 0, img, resize.Lanczos3)

	out, err := os.Create(filepath.Join(s.cfg.Dir, ThumbnailPrefix+base+".jpg"))
	if err != nil {
		return err
	}
	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: 80}); err != nil {
		out.Close()
		return fmt.Errorf("encode: %w", err)
	}
	return out.Close()
}

// ImportFromURL は外部URLの画像をSSRF防止付きクライアントで取得し、Storeと同じ検証を経て保存する。
func (s *Service) ImportFromURL(ctx context.Context, rawURL string) (string, error) {
	ref, err := s.importFromURL(ctx, rawURL)
	s.record(err)
	return ref, err
}

func (s *Service) importFromURL(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", model.NewInvalidURLError("http(s) URL is required")
	}
	if err := s.guard.ValidateURL(rawURL); err != nil {
		slog.Warn("image import blocked",
			slog.String("url", rawURL),
			slog.String("reason", err.Error()),
		)
		return "", model.NewSSRFBlockedError()
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ImportTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("Accept", "image/png, image/jpeg")

	resp, err := s.guard.NewSafeClient(s.cfg.ImportTimeout).Do(req)
	if err != nil {
		slog.Warn("image import failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return "", model.NewFetchFailedError("request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", model.NewFetchFailedError(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	return s.store(ctx, resp.Body, resp.ContentLength, resp.Header.Get("Content-Type"))
}

func (s *Service) record(err error) {
	if s.recorder == nil {
		return
	}
	var apiErr *model.APIError
	switch {
	case err == nil:
		s.recorder.RecordUpload(ResultStored)
	case errors.As(err, &apiErr):
		s.recorder.RecordUpload(ResultRejected)
	default:
		s.recorder.RecordUpload(ResultFailed)
	}
}
