package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/noxshop/internal/catalog"
	"github.com/hitoshi/noxshop/internal/model"
)

// multipartOverhead はmultipartの境界やヘッダー分として画像サイズ上限に加える余裕。
const multipartOverhead = 1 << 20

// CatalogServiceInterface は商品管理に必要なサービスインターフェース。
type CatalogServiceInterface interface {
	Create(ctx context.Context, in catalog.ProductInput) (*model.Product, error)
	Update(ctx context.Context, id int64, name string, price decimal.Decimal) (*model.Product, error)
	SoftDelete(ctx context.Context, id int64) error
}

// SpendReporter は月間利用額の集計に必要なインターフェース。
type SpendReporter interface {
	MonthlySpend(ctx context.Context) (map[string]decimal.Decimal, error)
}

// ImageStore は画像の保存とURLからの取り込みに必要なインターフェース。
type ImageStore interface {
	Store(ctx context.Context, r io.Reader, size int64, contentType string) (string, error)
	ImportFromURL(ctx context.Context, rawURL string) (string, error)
}

// AdminHandler は管理者向けのHTTPハンドラー。
type AdminHandler struct {
	catalog        CatalogServiceInterface
	reports        SpendReporter
	images         ImageStore
	maxUploadBytes int64
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(catalog CatalogServiceInterface, reports SpendReporter, images ImageStore, maxUploadBytes int64) *AdminHandler {
	return &AdminHandler{
		catalog:        catalog,
		reports:        reports,
		images:         images,
		maxUploadBytes: maxUploadBytes,
	}
}

// productRequest は商品作成・更新リクエストのボディ。
// 画像参照はimageUrlで受け取る。旧クライアントのimage_urlも受け付ける。
type productRequest struct {
	Name           string           `json:"name"`
	Price          *decimal.Decimal `json:"price"`
	ImageURL       string           `json:"imageUrl"`
	LegacyImageURL string           `json:"image_url"`
}

// importImageRequest は画像取り込みリクエストのボディ。
type importImageRequest struct {
	URL string `json:"url"`
}

func decodeProductRequest(r *http.Request) (*productRequest, *model.APIError) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, model.NewInvalidRequestError("リクエストボディの解析に失敗しました")
	}
	if req.Price == nil {
		return nil, model.NewInvalidProductError("price is required")
	}
	if req.ImageURL == "" {
		req.ImageURL = req.LegacyImageURL
	}
	return &req, nil
}

func parseProductID(r *http.Request) (int64, *model.APIError) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewInvalidRequestError("product id must be a positive integer")
	}
	return id, nil
}

// CreateProduct は商品を登録する。
// POST /api/admin/products
func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	req, apiErr := decodeProductRequest(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	product, err := h.catalog.Create(r.Context(), catalog.ProductInput{
		Name:     req.Name,
		Price:    *req.Price,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

// UpdateProduct は商品名と価格を更新する。画像と削除フラグは変更しない。
// PUT /api/admin/products/{id}
func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, apiErr := parseProductID(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}
	req, apiErr := decodeProductRequest(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	product, err := h.catalog.Update(r.Context(), id, req.Name, *req.Price)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

// DeleteProduct は商品を論理削除する。
// DELETE /api/admin/products/{id}
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, apiErr := parseProductID(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.catalog.SoftDelete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UserSpend は当月のユーザー別利用額を返す。
// GET /api/admin/user-spend
func (h *AdminHandler) UserSpend(w http.ResponseWriter, r *http.Request) {
	totals, err := h.reports.MonthlySpend(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make(map[string]float64, len(totals))
	for userID, total := range totals {
		resp[userID] = total.InexactFloat64()
	}
	writeJSON(w, http.StatusOK, resp)
}

// UploadImage はmultipartのfileフィールドで受け取った画像を保存し、参照を返す。
// POST /api/admin/upload-image
func (h *AdminHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)

	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidUploadError(fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes)))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidUploadError("multipart form is required"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidUploadError("file is required"))
		return
	}
	defer file.Close()

	ref, err := h.images.Store(r.Context(), file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeText(w, http.StatusOK, ref)
}

// ImportImage は外部URLの画像を取り込み、参照を返す。
// POST /api/admin/import-image
func (h *AdminHandler) ImportImage(w http.ResponseWriter, r *http.Request) {
	var req importImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	ref, err := h.images.ImportFromURL(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeText(w, http.StatusOK, ref)
}
