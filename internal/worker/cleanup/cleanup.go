// Package cleanup はどの商品からも参照されないアップロード画像の自動削除ジョブを提供する。
// アップロード後に商品登録されなかった画像や、画像を差し替えた後の旧ファイルが対象。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/noxshop/internal/upload"
)

// ImageReferenceLister は商品に設定されている画像参照の一覧を返す。
type ImageReferenceLister interface {
	ListImageURLs(ctx context.Context) ([]string, error)
}

// Recorder は削除件数を外部（メトリクス等）へ通知する。
type Recorder interface {
	RecordOrphansRemoved(count int)
}

// CleanupJob は未参照アップロードの削除ジョブ。
// 猶予期間内のファイルはアップロード直後で商品登録前の可能性があるため残す。
// 冪等: 削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	refs      ImageReferenceLister
	dir       string
	urlPrefix string
	logger    *slog.Logger
	recorder  Recorder
	now       func() time.Time

	Grace time.Duration // 更新時刻からこの期間を過ぎたファイルのみ削除する（デフォルト: 24時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(refs ImageReferenceLister, dir, urlPrefix string, logger *slog.Logger, recorder Recorder) *CleanupJob {
	return &CleanupJob{
		refs:      refs,
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/") + "/",
		logger:    logger,
		recorder:  recorder,
		now:       time.Now,
		Grace:     24 * time.Hour,
	}
}

// Run は猶予期間を過ぎた未参照ファイルを削除する。
// 参照中の画像のサムネイルは残す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	urls, err := j.refs.ListImageURLs(ctx)
	if err != nil {
		j.logger.Error("failed to list image references", slog.String("error", err.Error()))
		return fmt.Errorf("failed to list image references: %w", err)
	}
	keep := j.referencedFiles(urls)

	entries, err := os.ReadDir(j.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read upload directory: %w", err)
	}

	cutoff := j.now().Add(-j.Grace)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() || keep[entry.Name()] {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(j.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			j.logger.Warn("failed to remove orphan upload",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if j.recorder != nil {
		j.recorder.RecordOrphansRemoved(removed)
	}
	j.logger.Info("orphan upload cleanup completed",
		slog.Int("removed_count", removed),
		slog.Int("referenced_count", len(urls)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// referencedFiles は参照URLからアップロードディレクトリ内で保持すべきファイル名を求める。
// 外部URLの参照は無視する。
func (j *CleanupJob) referencedFiles(urls []string) map[string]bool {
	keep := make(map[string]bool, len(urls)*2)
	for _, u := range urls {
		name, ok := strings.CutPrefix(u, j.urlPrefix)
		if !ok || name == "" || strings.Contains(name, "/") {
			continue
		}
		keep[name] = true
		keep[upload.ThumbnailPrefix+strings.TrimSuffix(name, filepath.Ext(name))+".jpg"] = true
	}
	return keep
}
