package middleware

import (
	"net/http"
	"strings"
)

const (
	apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"
	// アップロード画像はSVG等を直接開かれてもスクリプトを実行させない
	imageContentSecurityPolicy = "default-src 'none'; style-src 'unsafe-inline'; sandbox"
)

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// imagePrefix配下の商品画像は別オリジンのストアフロントから<img>で読み込まれるため
// Cross-Origin-Resource-Policyをcross-originにし、それ以外のAPIはsame-originに限定する。
// imagePrefixが空の場合はすべてAPIとして扱う。
func NewSecurityHeadersMiddleware(imagePrefix string) func(next http.Handler) http.Handler {
	imagePrefix = strings.TrimSuffix(imagePrefix, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if isProductImagePath(r.URL.Path, imagePrefix) {
				h.Set("Content-Security-Policy", imageContentSecurityPolicy)
				h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			} else {
				h.Set("Content-Security-Policy", apiContentSecurityPolicy)
				h.Set("Cross-Origin-Resource-Policy", "same-origin")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isProductImagePath(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	return strings.HasPrefix(path, prefix+"/")
}
