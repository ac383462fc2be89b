package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/noxshop/internal/auth"
	"github.com/hitoshi/noxshop/internal/model"
)

// TokenVerifier はIDトークンを検証して主体を返す。
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*model.Principal, error)
}

// VerificationRecorder はトークン検証の結果を外部（メトリクス等）へ通知する。
type VerificationRecorder interface {
	RecordTokenVerification(ok bool)
}

// AccountFinder は管理者判定のためにアカウントを取得する。
type AccountFinder interface {
	FindByUID(ctx context.Context, uid string) (*model.Account, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// ヘッダーがない、またはBearer形式でない場合は匿名のまま次へ渡す。
// トークンが無効な場合は401を返し、以降のハンドラーは呼ばない。
// recorderはnilでもよい。
func NewAuthMiddleware(verifier TokenVerifier, recorder VerificationRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := verifier.Verify(r.Context(), token)
			if recorder != nil {
				recorder.RecordTokenVerification(err == nil)
			}
			if err != nil {
				slog.Warn("token verification failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAuth は認証済み主体のないリクエストに401を返すミドルウェアを返す。
func RequireAuth() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewAdminMiddleware はADMINロールを持つアカウントのみ通すミドルウェアを返す。
// RequireAuthの後に配置する。アカウントが未作成の場合も403とする。
func NewAdminMiddleware(finder AccountFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			account, err := finder.FindByUID(r.Context(), principal.UserID)
			if err != nil {
				slog.Error("failed to load account for admin check",
					slog.String("user_id", principal.UserID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if account == nil || !account.HasRole(model.RoleAdmin) {
				slog.Warn("admin access denied",
					slog.String("user_id", principal.UserID),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
