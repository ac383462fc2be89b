// Package report は管理者向けの集計を提供する。
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/noxshop/internal/repository"
)

// Service は購入記録の集計を提供する。
type Service struct {
	purchases repository.PurchaseRepository
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(purchases repository.PurchaseRepository) *Service {
	return &Service{purchases: purchases, now: time.Now}
}

// MonthRange はtを含む暦月の範囲を返す。
// fromは1日の00:00:00、toは末日の23:59:59で、いずれもtのタイムゾーンで計算する。
func MonthRange(t time.Time) (from, to time.Time) {
	from = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	to = time.Date(t.Year(), t.Month()+1, 0, 23, 59, 59, 0, t.Location())
	return from, to
}

// MonthlySpend は当月（サーバーのローカル時刻）のユーザーごとの購入合計を返す。
// 範囲は1日00:00:00から末日23:59:59までの両端を含む。当月に購入のないユーザーは含まない。
func (s *Service) MonthlySpend(ctx context.Context) (map[string]decimal.Decimal, error) {
	from, to := MonthRange(s.now())

	// toは秒単位の終端なので、その秒に含まれるミリ秒まで含める
	totals, err := s.purchases.SumByUserBetween(ctx, from.UnixMilli(), to.UnixMilli()+999)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly spend: %w", err)
	}
	return totals, nil
}
