package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/noxshop/internal/model"
)

// sampleProducts は商品が1件もない場合に投入する初期データ。
var sampleProducts = []struct {
	name  string
	price int64
}{
	{"Coffee", 150},
	{"Energy Drink", 200},
	{"Protein Bar", 200},
	{"Soda", 100},
	{"Sandwich", 30},
}

// SeedIfEmpty は商品テーブルが空の場合にサンプル商品を投入し、投入件数を返す。
// 削除済みを含め1件でも商品があれば何もしない。
func (s *Service) SeedIfEmpty(ctx context.Context) (int, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	for i, sp := range sampleProducts {
		p := &model.Product{Name: sp.name, Price: decimal.NewFromInt(sp.price)}
		if err := s.repo.Create(ctx, p); err != nil {
			return i, fmt.Errorf("failed to seed product %q: %w", sp.name, err)
		}
	}

	slog.Info("sample products inserted", slog.Int("count", len(sampleProducts)))
	return len(sampleProducts), nil
}
