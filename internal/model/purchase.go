package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase は購入記録を表す。作成後は不変。
// Price は購入時点の商品価格のスナップショットであり、以後の価格変更の影響を受けない。
type Purchase struct {
	ID        int64
	UserID    string
	ProductID int64
	Price     decimal.Decimal
	Timestamp int64 // エポックからのミリ秒
}

// PurchasedAt は購入時刻をtime.Timeで返す。
func (p *Purchase) PurchasedAt() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// PurchaseWithProduct は購入記録と商品名を結合した構造体。
type PurchaseWithProduct struct {
	Purchase
	ProductName string
}
