// Package model はドメインモデルを定義する。
package model

import "time"

// 定義済みロール
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Account はIdPの subject id をキーとするローカルアカウントを表す。
// ログインのたびにメールアドレスが同期される。
type Account struct {
	UID       string
	Email     string
	Roles     []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasRole は指定ロールを保持しているかを返す。
func (a *Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DefaultRoles は新規アカウントに付与するロールを返す。
func DefaultRoles() []string {
	return []string{RoleUser}
}

// Principal は認証済みリクエストの主体を表す。
// IdPで検証されたトークンから得られる。
type Principal struct {
	UserID string
	Email  string
}
