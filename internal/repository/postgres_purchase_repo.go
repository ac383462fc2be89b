package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/noxshop/internal/model"
)

// PostgresPurchaseRepo はPostgreSQLを使用した購入記録リポジトリ。
type PostgresPurchaseRepo struct {
	db *sql.DB
}

// NewPostgresPurchaseRepo はPostgresPurchaseRepoを生成する。
func NewPostgresPurchaseRepo(db *sql.DB) *PostgresPurchaseRepo {
	return &PostgresPurchaseRepo{db: db}
}

// Create は購入記録を作成し、採番されたIDをpurchaseに設定する。
func (r *PostgresPurchaseRepo) Create(ctx context.Context, purchase *model.Purchase) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO purchases (user_id, product_id, price, purchased_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		purchase.UserID, purchase.ProductID, purchase.Price, purchase.Timestamp,
	).Scan(&purchase.ID)
	if err != nil {
		return fmt.Errorf("failed to insert purchase: %w", err)
	}
	return nil
}

// ListByUserWithProduct はユーザーの購入履歴を商品名付きで新しい順に返す。
// INNER JOINのため、参照先の商品が存在しない購入記録は結果に含まれない。
func (r *PostgresPurchaseRepo) ListByUserWithProduct(ctx context.Context, userID string) ([]model.PurchaseWithProduct, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pu.id, pu.user_id, pu.product_id, pu.price, pu.purchased_at, pr.name
		 FROM purchases pu
		 INNER JOIN products pr ON pr.id = pu.product_id
		 WHERE pu.user_id = $1
		 ORDER BY pu.purchased_at DESC, pu.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	results := make([]model.PurchaseWithProduct, 0)
	for rows.Next() {
		var p model.PurchaseWithProduct
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProductID, &p.Price, &p.Timestamp, &p.ProductName); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purchases: %w", err)
	}

	return results, nil
}

// SumByUserBetween は [fromMs, toMs] の範囲に含まれる購入をユーザーごとに合計する。
func (r *PostgresPurchaseRepo) SumByUserBetween(ctx context.Context, fromMs, toMs int64) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, SUM(price)
		 FROM purchases
		 WHERE purchased_at >= $1 AND purchased_at <= $2
		 GROUP BY user_id`,
		fromMs, toMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate purchases: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var userID string
		var total decimal.Decimal
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, fmt.Errorf("failed to scan purchase total: %w", err)
		}
		totals[userID] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate purchase totals: %w", err)
	}

	return totals, nil
}

// compile-time interface check
var _ PurchaseRepository = (*PostgresPurchaseRepo)(nil)
