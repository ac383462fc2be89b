package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/noxshop/internal/middleware"
	"github.com/hitoshi/noxshop/internal/model"
)

// AccountServiceInterface はログイン処理に必要なサービスインターフェース。
type AccountServiceInterface interface {
	Login(ctx context.Context, uid, email string) (*model.Account, error)
}

// AuthHandler はログインのHTTPハンドラー。
type AuthHandler struct {
	accounts AccountServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(accounts AccountServiceInterface) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Login は検証済みトークンの主体でアカウントを作成または同期する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	account, err := h.accounts.Login(r.Context(), principal.UserID, principal.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}
