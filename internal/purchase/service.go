// Package purchase は商品の購入と購入履歴を提供する。
package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/noxshop/internal/model"
	"github.com/hitoshi/noxshop/internal/repository"
)

// SuccessMessage は購入成功時にクライアントへ返す確認メッセージ。
const SuccessMessage = "Purchase successful!"

// Recorder は購入確定を外部（メトリクス等）へ通知する。
type Recorder interface {
	RecordPurchase(price float64)
}

// Config は購入サービスの設定。
type Config struct {
	// AllowRemoved が true の場合、削除済み商品も購入できる。
	AllowRemoved bool
}

// Service は購入に関するビジネスロジックを提供する。
type Service struct {
	products  repository.ProductRepository
	purchases repository.PurchaseRepository
	recorder  Recorder
	config    Config
	now       func() time.Time
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(
	products repository.ProductRepository,
	purchases repository.PurchaseRepository,
	recorder Recorder,
	config Config,
) *Service {
	return &Service{
		products:  products,
		purchases: purchases,
		recorder:  recorder,
		config:    config,
		now:       time.Now,
	}
}

// Buy はユーザーの購入を記録する。
// 価格は購入時点の商品価格を複製して保存し、以後の価格変更の影響を受けない。
// 商品が存在しない場合はPRODUCT_NOT_FOUNDエラーを返す。
func (s *Service) Buy(ctx context.Context, userID string, productID int64) (*model.Purchase, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(productID)
	}
	if product.Removed && !s.config.AllowRemoved {
		return nil, model.NewProductNotFoundError(productID)
	}

	purchase := &model.Purchase{
		UserID:    userID,
		ProductID: product.ID,
		Price:     product.Price,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.purchases.Create(ctx, purchase); err != nil {
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	slog.Info("purchase recorded",
		slog.String("user_id", userID),
		slog.Int64("product_id", product.ID),
		slog.String("price", product.Price.StringFixed(2)),
	)
	if s.recorder != nil {
		s.recorder.RecordPurchase(product.Price.InexactFloat64())
	}

	return purchase, nil
}

// History はユーザーの購入履歴を商品名付きで返す。
// 参照先の商品が存在しない購入記録は含まない。
func (s *Service) History(ctx context.Context, userID string) ([]model.PurchaseWithProduct, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	history, err := s.purchases.ListByUserWithProduct(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase history: %w", err)
	}
	return history, nil
}
