package handler

import (
	"net/http"
	"strings"
)

// NewUploadsHandler はアップロードディレクトリの画像を配信するハンドラーを返す。
// prefix直下のファイルのみ配信し、ディレクトリ一覧とドットファイル（書き込み途中の一時ファイル）は404とする。
func NewUploadsHandler(dir, prefix string) http.Handler {
	prefix = strings.TrimRight(prefix, "/") + "/"
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, prefix)
		if name == "" || name == r.URL.Path || strings.Contains(name, "/") || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}
