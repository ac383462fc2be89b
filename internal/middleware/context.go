// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/noxshop/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	principalContextKey = contextKey("principal")
	userSlotContextKey  = contextKey("user_slot")
)

// userSlot は外側のミドルウェアが内側で確定したユーザーIDを参照するための入れ物。
// 1リクエストのゴルーチン内でのみ読み書きする。
type userSlot struct {
	userID string
}

// withUserSlot はctxにuserSlotがなければ追加する。既にあればそれを返す。
func withUserSlot(ctx context.Context) (context.Context, *userSlot) {
	if slot, ok := ctx.Value(userSlotContextKey).(*userSlot); ok {
		return ctx, slot
	}
	slot := &userSlot{}
	return context.WithValue(ctx, userSlotContextKey, slot), slot
}

// ContextWithPrincipal はコンテキストに認証済み主体を注入する。
func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	if slot, ok := ctx.Value(userSlotContextKey).(*userSlot); ok {
		slot.userID = p.UserID
	}
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext はコンテキストから認証済み主体を取得する。
func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*model.Principal)
	if !ok || p == nil || p.UserID == "" {
		return nil, false
	}
	return p, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアでトークンが検証されたリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID, nil
	}
	if slot, ok := ctx.Value(userSlotContextKey).(*userSlot); ok && slot.userID != "" {
		return slot.userID, nil
	}
	return "", fmt.Errorf("user ID not found in context")
}

// ContextWithUserID はコンテキストにユーザーIDのみを持つ主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithPrincipal(ctx, &model.Principal{UserID: userID})
}
