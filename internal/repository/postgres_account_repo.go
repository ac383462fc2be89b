package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/noxshop/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByUID は指定UIDのアカウントをロール付きで取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByUID(ctx context.Context, uid string) (*model.Account, error) {
	account := &model.Account{}
	var roles pq.StringArray

	err := r.db.QueryRowContext(ctx,
		`SELECT a.uid, a.email, a.created_at, a.updated_at,
		        COALESCE(array_agg(ar.role ORDER BY ar.role) FILTER (WHERE ar.role IS NOT NULL), '{}')
		 FROM accounts a
		 LEFT JOIN account_roles ar ON ar.account_uid = a.uid
		 WHERE a.uid = $1
		 GROUP BY a.uid`,
		uid,
	).Scan(&account.UID, &account.Email, &account.CreatedAt, &account.UpdatedAt, &roles)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by UID: %w", err)
	}

	account.Roles = []string(roles)
	return account, nil
}

// Create はアカウントとロールを同一トランザクションで作成する。
// 同時ログインで先に作成された場合はON CONFLICTにより何も書き込まずfalseを返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// アカウントを作成
	result, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (uid, email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (uid) DO NOTHING`,
		account.UID, account.Email, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert account: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if inserted == 0 {
		return false, nil
	}

	// ロールを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO account_roles (account_uid, role)
		 SELECT $1, unnest($2::text[])
		 ON CONFLICT DO NOTHING`,
		account.UID, pq.Array(account.Roles),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert account roles: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// UpdateEmail はアカウントのメールアドレスを更新する。
func (r *PostgresAccountRepo) UpdateEmail(ctx context.Context, uid, email string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET email = $2, updated_at = now() WHERE uid = $1`,
		uid, email,
	)
	if err != nil {
		return fmt.Errorf("failed to update account email: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", uid)
	}
	return nil
}

// AddRole はアカウントにロールを付与する。
// アカウントが存在しない場合はfalseを返す。
func (r *PostgresAccountRepo) AddRole(ctx context.Context, uid, role string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO account_roles (account_uid, role)
		 SELECT uid, $2 FROM accounts WHERE uid = $1
		 ON CONFLICT DO NOTHING`,
		uid, role,
	)
	if err != nil {
		return false, fmt.Errorf("failed to add account role: %w", err)
	}
	if _, err := result.RowsAffected(); err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	// 付与済みの場合もRowsAffectedは0になるため存在確認は別に行う
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE uid = $1)`, uid,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check account existence: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
