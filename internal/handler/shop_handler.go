package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/noxshop/internal/middleware"
	"github.com/hitoshi/noxshop/internal/model"
	"github.com/hitoshi/noxshop/internal/purchase"
)

// ProductLister は公開カタログの取得に必要なインターフェース。
type ProductLister interface {
	ListPublic(ctx context.Context) ([]*model.Product, error)
}

// PurchaseServiceInterface は購入ハンドラーが必要とするサービスインターフェース。
type PurchaseServiceInterface interface {
	Buy(ctx context.Context, userID string, productID int64) (*model.Purchase, error)
	History(ctx context.Context, userID string) ([]model.PurchaseWithProduct, error)
}

// ShopHandler は商品一覧と購入のHTTPハンドラー。
type ShopHandler struct {
	products  ProductLister
	purchases PurchaseServiceInterface
}

// NewShopHandler はShopHandlerを生成する。
func NewShopHandler(products ProductLister, purchases PurchaseServiceInterface) *ShopHandler {
	return &ShopHandler{products: products, purchases: purchases}
}

// ListProducts は削除されていない商品の一覧を返す。
// GET /api/products
func (h *ShopHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListPublic(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(products))
}

// Buy は認証済みユーザーの購入を記録する。
// POST /api/buy?productId={id}
func (h *ShopHandler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	productID, err := strconv.ParseInt(r.URL.Query().Get("productId"), 10, 64)
	if err != nil || productID <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("productId must be a positive integer"))
		return
	}

	if _, err := h.purchases.Buy(r.Context(), userID, productID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeText(w, http.StatusOK, purchase.SuccessMessage)
}

// ListPurchases は認証済みユーザーの購入履歴を返す。
// GET /api/purchases
func (h *ShopHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	history, err := h.purchases.History(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseResponses(history))
}
