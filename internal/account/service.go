// Package account はIdPで認証されたユーザーのローカルアカウント管理を提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/noxshop/internal/model"
	"github.com/hitoshi/noxshop/internal/repository"
)

// Service はアカウントのログイン処理とロール管理を提供する。
type Service struct {
	repo      repository.AccountRepository
	adminUIDs map[string]struct{}
	now       func() time.Time
}

// NewService はServiceを生成する。
// adminUIDsに含まれるUIDは、アカウント作成時にADMINロールが付与される。
func NewService(repo repository.AccountRepository, adminUIDs []string) *Service {
	admins := make(map[string]struct{}, len(adminUIDs))
	for _, uid := range adminUIDs {
		admins[uid] = struct{}{}
	}
	return &Service{
		repo:      repo,
		adminUIDs: admins,
		now:       time.Now,
	}
}

// Login は検証済みのIDからアカウントを取得または作成する。
// 既存アカウントのメールアドレスが異なる場合のみ更新し、同一なら書き込みを行わない。
// 同じ入力で何度呼び出しても結果は変わらない。
// emailクレームを持たないトークンではアカウントを作らない。
func (s *Service) Login(ctx context.Context, uid, email string) (*model.Account, error) {
	if uid == "" {
		return nil, model.NewUnauthorizedError()
	}
	if strings.TrimSpace(email) == "" {
		return nil, model.NewInvalidRequestError("email claim is required")
	}

	existing, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if existing != nil {
		return s.syncEmail(ctx, existing, email)
	}

	now := s.now()
	account := &model.Account{
		UID:       uid,
		Email:     email,
		Roles:     s.initialRoles(uid),
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.repo.Create(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	if created {
		slog.Info("account created",
			slog.String("user_id", uid),
			slog.Any("roles", account.Roles),
		)
		return account, nil
	}

	// 同時ログインで先に作成された。作成済みのレコードを読み直して同期する
	existing, err = s.repo.FindByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to reload account: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("account disappeared after concurrent create: %s", uid)
	}
	return s.syncEmail(ctx, existing, email)
}

func (s *Service) syncEmail(ctx context.Context, account *model.Account, email string) (*model.Account, error) {
	if account.Email == email {
		return account, nil
	}

	if err := s.repo.UpdateEmail(ctx, account.UID, email); err != nil {
		return nil, fmt.Errorf("failed to sync account email: %w", err)
	}
	slog.Info("email synced", slog.String("user_id", account.UID))

	account.Email = email
	account.UpdatedAt = s.now()
	return account, nil
}

func (s *Service) initialRoles(uid string) []string {
	roles := model.DefaultRoles()
	if _, ok := s.adminUIDs[uid]; ok {
		roles = append(roles, model.RoleAdmin)
	}
	return roles
}

// FindByUID は指定UIDのアカウントを返す。見つからない場合はnilを返す。
func (s *Service) FindByUID(ctx context.Context, uid string) (*model.Account, error) {
	account, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}

// GrantRole は既存アカウントにロールを付与する。
// アカウントが存在しない場合はACCOUNT_NOT_FOUNDエラーを返す。
func (s *Service) GrantRole(ctx context.Context, uid, role string) error {
	if role != model.RoleUser && role != model.RoleAdmin {
		return model.NewInvalidRequestError(fmt.Sprintf("unknown role %q", role))
	}

	ok, err := s.repo.AddRole(ctx, uid, role)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	if !ok {
		return model.NewAccountNotFoundError(uid)
	}

	slog.Info("role granted",
		slog.String("user_id", uid),
		slog.String("role", role),
	)
	return nil
}
