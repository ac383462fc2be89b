package handler

import (
	"github.com/hitoshi/noxshop/internal/model"
)

// productResponse は商品のAPIレスポンス。フィールド名はフロントエンドに合わせてcamelCaseとする。
type productResponse struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	ImageURL *string `json:"imageUrl"`
	Removed  bool    `json:"removed"`
}

// purchaseResponse は商品名付き購入記録のAPIレスポンス。
type purchaseResponse struct {
	ID          int64   `json:"id"`
	UserID      string  `json:"userId"`
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Price       float64 `json:"price"`
	Timestamp   int64   `json:"timestamp"`
}

// accountResponse はアカウントのAPIレスポンス。
type accountResponse struct {
	UID   string   `json:"uid"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func toProductResponse(p *model.Product) productResponse {
	resp := productResponse{
		ID:      p.ID,
		Name:    p.Name,
		Price:   p.Price.InexactFloat64(),
		Removed: p.Removed,
	}
	if p.ImageURL != "" {
		img := p.ImageURL
		resp.ImageURL = &img
	}
	return resp
}

func toProductResponses(products []*model.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

func toPurchaseResponses(history []model.PurchaseWithProduct) []purchaseResponse {
	out := make([]purchaseResponse, 0, len(history))
	for _, h := range history {
		out = append(out, purchaseResponse{
			ID:          h.ID,
			UserID:      h.UserID,
			ProductID:   h.ProductID,
			ProductName: h.ProductName,
			Price:       h.Price.InexactFloat64(),
			Timestamp:   h.Timestamp,
		})
	}
	return out
}

func toAccountResponse(a *model.Account) accountResponse {
	roles := a.Roles
	if roles == nil {
		roles = []string{}
	}
	return accountResponse{UID: a.UID, Email: a.Email, Roles: roles}
}
