package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/noxshop/internal/catalog"
	"github.com/hitoshi/noxshop/internal/middleware"
	"github.com/hitoshi/noxshop/internal/model"
)

// --- モック定義 ---

type mockProductLister struct {
	listPublicFn func(ctx context.Context) ([]*model.Product, error)
}

func (m *mockProductLister) ListPublic(ctx context.Context) ([]*model.Product, error) {
	if m.listPublicFn != nil {
		return m.listPublicFn(ctx)
	}
	return nil, nil
}

type mockPurchaseService struct {
	buyFn     func(ctx context.Context, userID string, productID int64) (*model.Purchase, error)
	historyFn func(ctx context.Context, userID string) ([]model.PurchaseWithProduct, error)
}

func (m *mockPurchaseService) Buy(ctx context.Context, userID string, productID int64) (*model.Purchase, error) {
	if m.buyFn != nil {
		return m.buyFn(ctx, userID, productID)
	}
	return &model.Purchase{ID: 1, UserID: userID, ProductID: productID}, nil
}

func (m *mockPurchaseService) History(ctx context.Context, userID string) ([]model.PurchaseWithProduct, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID)
	}
	return nil, nil
}

type mockAccountService struct {
	loginFn func(ctx context.Context, uid, email string) (*model.Account, error)
}

func (m *mockAccountService) Login(ctx context.Context, uid, email string) (*model.Account, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, uid, email)
	}
	return &model.Account{UID: uid, Email: email, Roles: model.DefaultRoles()}, nil
}

type mockCatalogService struct {
	createFn     func(ctx context.Context, in catalog.ProductInput) (*model.Product, error)
	updateFn     func(ctx context.Context, id int64, name string, price decimal.Decimal) (*model.Product, error)
	softDeleteFn func(ctx context.Context, id int64) error
}

func (m *mockCatalogService) Create(ctx context.Context, in catalog.ProductInput) (*model.Product, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.Product{ID: 1, Name: in.Name, Price: in.Price, ImageURL: in.ImageURL}, nil
}

func (m *mockCatalogService) Update(ctx context.Context, id int64, name string, price decimal.Decimal) (*model.Product, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, name, price)
	}
	return &model.Product{ID: id, Name: name, Price: price}, nil
}

func (m *mockCatalogService) SoftDelete(ctx context.Context, id int64) error {
	if m.softDeleteFn != nil {
		return m.softDeleteFn(ctx, id)
	}
	return nil
}

type mockSpendReporter struct {
	monthlySpendFn func(ctx context.Context) (map[string]decimal.Decimal, error)
}

func (m *mockSpendReporter) MonthlySpend(ctx context.Context) (map[string]decimal.Decimal, error) {
	if m.monthlySpendFn != nil {
		return m.monthlySpendFn(ctx)
	}
	return map[string]decimal.Decimal{}, nil
}

type mockImageStore struct {
	storeFn  func(ctx context.Context, r io.Reader, size int64, contentType string) (string, error)
	importFn func(ctx context.Context, rawURL string) (string, error)
}

func (m *mockImageStore) Store(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	if m.storeFn != nil {
		return m.storeFn(ctx, r, size, contentType)
	}
	return "/uploads/products/x.png", nil
}

func (m *mockImageStore) ImportFromURL(ctx context.Context, rawURL string) (string, error) {
	if m.importFn != nil {
		return m.importFn(ctx, rawURL)
	}
	return "/uploads/products/x.png", nil
}

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseAPIErrorResponse はレスポンスボディから統一エラーをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// contextWithPrincipal はテスト用に検証済み主体をコンテキストへ注入する。
func contextWithPrincipal(r *http.Request, uid, email string) context.Context {
	return middleware.ContextWithPrincipal(r.Context(), &model.Principal{UserID: uid, Email: email})
}
