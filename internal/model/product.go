package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product は商品を表す。
// 物理削除は行わず、Removed フラグで公開カタログから除外する。
type Product struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	ImageURL  string
	Removed   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
