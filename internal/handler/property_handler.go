package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rentals/internal/form"
	"github.com/hitoshi/rentals/internal/imagestore"
	"github.com/hitoshi/rentals/internal/middleware"
	"github.com/hitoshi/rentals/internal/model"
	"github.com/hitoshi/rentals/internal/property"
)

// PropertyServiceInterface は物件ハンドラーが必要とするサービスインターフェース。
type PropertyServiceInterface interface {
	List(ctx context.Context, page model.PageRequest) (*model.PropertyPage, error)
	Get(ctx context.Context, id string) (*model.Property, error)
	Featured(ctx context.Context) ([]*model.Property, error)
	ByOwner(ctx context.Context, ownerID string) ([]*model.Property, error)
	Search(ctx context.Context, q model.PropertySearch) ([]*model.Property, error)
	Create(ctx context.Context, actor model.Identity, in form.Property) (*model.Property, error)
	Delete(ctx context.Context, actor model.Identity, id string) error
	ToggleFeatured(ctx context.Context, actor model.Identity, id string) (*model.Property, string, error)
	ImageUploadURL(ctx context.Context, actor model.Identity, contentType string) (*imagestore.Upload, error)
}

// PropertyHandler は物件のHTTPハンドラー。
type PropertyHandler struct {
	service PropertyServiceInterface
}

// NewPropertyHandler はPropertyHandlerを生成する。
func NewPropertyHandler(service PropertyServiceInterface) *PropertyHandler {
	return &PropertyHandler{service: service}
}

// imageUploadResponse は画像アップロードURLのレスポンス型。
type imageUploadResponse struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	PublicURL string    `json:"public_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// List は物件一覧を返す。
// GET /api/properties?page=1&pageSize=10
func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.List(r.Context(), model.PageRequest{
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "pageSize"),
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, propertyPageResponse{
		Properties: toPropertyResponses(page.Properties),
		Total:      page.Total,
		TotalPages: page.TotalPages,
	})
}

// Featured はおすすめ物件を返す。
// GET /api/properties/featured
func (h *PropertyHandler) Featured(w http.ResponseWriter, r *http.Request) {
	properties, err := h.service.Featured(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyResponses(properties))
}

// Search は所在地と種別で物件を検索する。
// GET /api/properties/search?location=xxx&propertyType=yyy
func (h *PropertyHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	properties, err := h.service.Search(r.Context(), model.PropertySearch{
		Location:     q.Get("location"),
		PropertyType: q.Get("propertyType"),
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyResponses(properties))
}

// Get は物件を返す。
// GET /api/properties/{id}
func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyResponse(p))
}

// ByOwner は指定ユーザーの物件を返す。
// GET /api/users/{id}/properties
func (h *PropertyHandler) ByOwner(w http.ResponseWriter, r *http.Request) {
	properties, err := h.service.ByOwner(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyResponses(properties))
}

// Create は物件を登録する。
// POST /api/properties
func (h *PropertyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in form.Property
	if err := form.Bind(r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	p, err := h.service.Create(r.Context(), actorOf(r), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, actionResult{
		Success: true,
		Message: property.MsgPropertyCreated,
		Data:    toPropertyResponse(p),
	})
}

// Delete は物件を削除する。所有者または管理者のみ。
// DELETE /api/properties/{id}
func (h *PropertyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), actorOf(r), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResult{Success: true, Message: property.MsgPropertyDeleted})
}

// ToggleFeatured はおすすめフラグを切り替える。管理者のみ。
// PATCH /api/properties/{id}/featured
func (h *PropertyHandler) ToggleFeatured(w http.ResponseWriter, r *http.Request) {
	p, msg, err := h.service.ToggleFeatured(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResult{
		Success: true,
		Message: msg,
		Data:    toPropertyResponse(p),
	})
}

// ImageUploadURL は物件画像のアップロードURLを発行する。
// POST /api/properties/images
func (h *PropertyHandler) ImageUploadURL(w http.ResponseWriter, r *http.Request) {
	var in form.ImageUpload
	if err := form.Bind(r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if err := form.Check(in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	up, err := h.service.ImageUploadURL(r.Context(), actorOf(r), in.ContentType)
	if errors.Is(err, property.ErrImagesDisabled) {
		slog.Warn("image upload requested but storage is not configured")
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, &model.APIError{
			Code:     model.ErrCodeInternal,
			Message:  "Image uploads are currently unavailable",
			Category: "system",
			Action:   "Add image URLs directly or try again later.",
		})
		return
	}
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, imageUploadResponse{
		Key:       up.Key,
		UploadURL: up.UploadURL,
		PublicURL: up.PublicURL,
		ExpiresAt: up.ExpiresAt.UTC(),
	})
}
