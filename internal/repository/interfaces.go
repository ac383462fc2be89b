// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/noxshop/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByUID は指定UIDのアカウントをロール付きで取得する。見つからない場合はnilを返す。
	FindByUID(ctx context.Context, uid string) (*model.Account, error)

	// Create はアカウントとロールを同一トランザクションで作成する。
	// 同一UIDのアカウントが既に存在する場合は何も書き込まずfalseを返す。
	Create(ctx context.Context, account *model.Account) (bool, error)

	// UpdateEmail はアカウントのメールアドレスを更新する。
	UpdateEmail(ctx context.Context, uid, email string) error

	// AddRole はアカウントにロールを付与する。既に付与済みの場合は何もしない。
	// アカウントが存在しない場合はfalseを返す。
	AddRole(ctx context.Context, uid, role string) (bool, error)
}

// ProductRepository は商品データの永続化インターフェース。
type ProductRepository interface {
	// ListVisible は削除フラグが立っていない商品をID昇順で返す。
	ListVisible(ctx context.Context) ([]*model.Product, error)

	// FindByID は指定IDの商品を削除済みを含めて取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Product, error)

	// Create は商品を作成し、採番されたIDとタイムスタンプをproductに設定する。
	Create(ctx context.Context, product *model.Product) error

	// UpdateNameAndPrice は商品名と価格のみを更新し、更新後のレコードを返す。
	// 画像と削除フラグは保持する。見つからない場合はnilを返す。
	UpdateNameAndPrice(ctx context.Context, id int64, name string, price decimal.Decimal) (*model.Product, error)

	// MarkRemoved は削除フラグを立てる。見つからない場合はfalseを返す。
	MarkRemoved(ctx context.Context, id int64) (bool, error)

	// Count は削除済みを含む全商品数を返す。
	Count(ctx context.Context) (int, error)

	// ListImageURLs は画像が設定されている全商品の画像参照を返す。
	ListImageURLs(ctx context.Context) ([]string, error)
}

// PurchaseRepository は購入記録の永続化インターフェース。
type PurchaseRepository interface {
	// Create は購入記録を作成し、採番されたIDをpurchaseに設定する。
	Create(ctx context.Context, purchase *model.Purchase) error

	// ListByUserWithProduct はユーザーの購入履歴を商品名付きで新しい順に返す。
	// 参照先の商品が存在しない購入記録は結果に含まない。
	ListByUserWithProduct(ctx context.Context, userID string) ([]model.PurchaseWithProduct, error)

	// SumByUserBetween は [fromMs, toMs] の範囲に含まれる購入をユーザーごとに合計する。
	// 両端を含む。購入のないユーザーは結果に含まない。
	SumByUserBetween(ctx context.Context, fromMs, toMs int64) (map[string]decimal.Decimal, error)
}
