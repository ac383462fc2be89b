// Package auth はIdPが発行したIDトークンの検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/hitoshi/noxshop/internal/model"
)

// ErrInvalidToken はトークンが不正または期限切れであることを表す。
var ErrInvalidToken = errors.New("invalid id token")

// IDTokenVerifier はFirebase Authクライアントのうちトークン検証部分のインターフェース。
// *fbauth.Client がこれを満たす。
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// NewFirebaseAuthClient はサービスアカウントの認証情報ファイルからFirebase Authクライアントを生成する。
func NewFirebaseAuthClient(ctx context.Context, credentialsFile string) (*fbauth.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}
	return client, nil
}

// Verifier はIDトークンを検証し、認証済みの主体を返す。
type Verifier struct {
	client IDTokenVerifier
}

// NewVerifier はVerifierを生成する。
func NewVerifier(client IDTokenVerifier) *Verifier {
	return &Verifier{client: client}
}

// Verify はIDトークンを検証し、subject id とメールアドレスを持つPrincipalを返す。
// 検証に失敗した場合はErrInvalidTokenをラップしたエラーを返す。
func (v *Verifier) Verify(ctx context.Context, idToken string) (*model.Principal, error) {
	if idToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	tok, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tok == nil || tok.UID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	email, _ := tok.Claims["email"].(string)
	return &model.Principal{UserID: tok.UID, Email: email}, nil
}

// BearerToken はAuthorizationヘッダー値からBearerトークンを取り出す。
// Bearer形式でない場合はfalseを返す。Bearerスキームであればトークンが空でもtrueを返し、
// 検証失敗として扱わせる。
func BearerToken(header string) (string, bool) {
	const scheme = "bearer"
	header = strings.TrimSpace(header)
	if len(header) < len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	rest := header[len(scheme):]
	if rest == "" {
		return "", true
	}
	if rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
