// Package catalog は商品カタログの管理を提供する。
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/noxshop/internal/model"
	"github.com/hitoshi/noxshop/internal/repository"
)

// maxNameLength は商品名の最大文字数（products.nameのVARCHAR長）。
const maxNameLength = 255

// maxPrice はNUMERIC(12,2)に格納できる上限。
var maxPrice = decimal.New(1, 10)

// Sanitizer はプレーンテキスト入力からマークアップを除去する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// ProductInput は商品作成時の入力。
type ProductInput struct {
	Name     string
	Price    decimal.Decimal
	ImageURL string
}

// Service は商品カタログのビジネスロジックを提供する。
type Service struct {
	repo            repository.ProductRepository
	sanitizer       Sanitizer
	uploadURLPrefix string
}

// NewService はServiceを生成する。
// uploadURLPrefixはアップロード済み画像の参照に付くパスで、画像参照の検証に使う。
func NewService(repo repository.ProductRepository, sanitizer Sanitizer, uploadURLPrefix string) *Service {
	return &Service{
		repo:            repo,
		sanitizer:       sanitizer,
		uploadURLPrefix: strings.TrimRight(uploadURLPrefix, "/"),
	}
}

// ListPublic は削除されていない商品の一覧を返す。
func (s *Service) ListPublic(ctx context.Context) ([]*model.Product, error) {
	products, err := s.repo.ListVisible(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// Get は商品を削除済みを含めて取得する。
func (s *Service) Get(ctx context.Context, id int64) (*model.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(id)
	}
	return product, nil
}

// Create は商品を作成する。作成直後の商品は削除フラグが立っていない。
func (s *Service) Create(ctx context.Context, in ProductInput) (*model.Product, error) {
	name, err := s.normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	imageURL := strings.TrimSpace(in.ImageURL)
	if err := s.validateImageURL(imageURL); err != nil {
		return nil, err
	}

	product := &model.Product{
		Name:     name,
		Price:    in.Price,
		ImageURL: imageURL,
		Removed:  false,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	slog.Info("product created",
		slog.Int64("product_id", product.ID),
		slog.String("price", product.Price.StringFixed(2)),
	)
	return product, nil
}

// Update は商品名と価格のみを置き換える。画像と削除フラグは保持する。
// 商品が存在しない場合はPRODUCT_NOT_FOUNDエラーを返す。
func (s *Service) Update(ctx context.Context, id int64, name string, price decimal.Decimal) (*model.Product, error) {
	normalized, err := s.normalizeName(name)
	if err != nil {
		return nil, err
	}
	if err := validatePrice(price); err != nil {
		return nil, err
	}

	product, err := s.repo.UpdateNameAndPrice(ctx, id, normalized, price)
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(id)
	}

	slog.Info("product updated",
		slog.Int64("product_id", id),
		slog.String("price", price.StringFixed(2)),
	)
	return product, nil
}

// SoftDelete は商品に削除フラグを立てる。レコードは物理削除しない。
// 商品が存在しない場合はPRODUCT_NOT_FOUNDエラーを返す。
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	ok, err := s.repo.MarkRemoved(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to remove product: %w", err)
	}
	if !ok {
		return model.NewProductNotFoundError(id)
	}

	slog.Info("product soft-deleted", slog.Int64("product_id", id))
	return nil
}

func (s *Service) normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if s.sanitizer != nil {
		name = s.sanitizer.Sanitize(name)
	}
	if name == "" {
		return "", model.NewInvalidProductError("name is empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", model.NewInvalidProductError(fmt.Sprintf("name exceeds %d characters", maxNameLength))
	}
	return name, nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return model.NewInvalidProductError("price must not be negative")
	}
	if !price.Equal(price.Round(2)) {
		return model.NewInvalidProductError("price must have at most 2 decimal places")
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return model.NewInvalidProductError("price is too large")
	}
	return nil
}

// validateImageURL はアップロード済み画像の参照か、http(s)の絶対URLのみを許可する。
func (s *Service) validateImageURL(ref string) error {
	if ref == "" {
		return nil
	}
	if s.uploadURLPrefix != "" && strings.HasPrefix(ref, s.uploadURLPrefix+"/") {
		if strings.Contains(ref, "..") {
			return model.NewInvalidProductError("image reference must not contain '..'")
		}
		return nil
	}

	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.NewInvalidProductError("image_url must be an uploaded image or an http(s) URL")
	}
	return nil
}
