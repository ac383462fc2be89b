package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/noxshop/internal/model"
)

// productColumns は商品取得時に共通で使用するカラム一覧。
const productColumns = `id, name, price, image_url, removed, created_at, updated_at`

// PostgresProductRepo はPostgreSQLを使用した商品リポジトリ。
type PostgresProductRepo struct {
	db *sql.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sql.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanProduct は1行分の商品データをスキャンする。
func scanProduct(s rowScanner) (*model.Product, error) {
	p := &model.Product{}
	var imageURL sql.NullString
	if err := s.Scan(&p.ID, &p.Name, &p.Price, &imageURL, &p.Removed, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ImageURL = nullStringValue(imageURL)
	return p, nil
}

// ListVisible は削除フラグが立っていない商品をID昇順で返す。
func (r *PostgresProductRepo) ListVisible(ctx context.Context) ([]*model.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE removed = FALSE ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]*model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	return products, nil
}

// FindByID は指定IDの商品を削除済みを含めて取得する。見つからない場合はnilを返す。
func (r *PostgresProductRepo) FindByID(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return p, nil
}

// Create は商品を作成し、採番されたIDとタイムスタンプをproductに設定する。
func (r *PostgresProductRepo) Create(ctx context.Context, product *model.Product) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO products (name, price, image_url, removed)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		product.Name, product.Price, nullString(product.ImageURL), product.Removed,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// UpdateNameAndPrice は商品名と価格のみを1文で更新し、更新後のレコードを返す。
// 見つからない場合はnilを返す。
func (r *PostgresProductRepo) UpdateNameAndPrice(ctx context.Context, id int64, name string, price decimal.Decimal) (*model.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`UPDATE products SET name = $2, price = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING `+productColumns,
		id, name, price,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return p, nil
}

// MarkRemoved は削除フラグを立てる。見つからない場合はfalseを返す。
// 既に削除済みの商品に対しても成功として扱う。
func (r *PostgresProductRepo) MarkRemoved(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET removed = TRUE, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark product removed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Count は削除済みを含む全商品数を返す。
func (r *PostgresProductRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// ListImageURLs は画像が設定されている全商品の画像参照を返す。
// 削除済み商品の画像も購入履歴から参照されうるため含める。
func (r *PostgresProductRepo) ListImageURLs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT image_url FROM products WHERE image_url IS NOT NULL AND image_url <> ''`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list image urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan image url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate image urls: %w", err)
	}
	return urls, nil
}

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ ProductRepository = (*PostgresProductRepo)(nil)
