package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/rentals/internal/model"
)

// actionResult はアクションの統一レスポンス。
type actionResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// userResponse はユーザーのレスポンス型。パスワードダイジェストは含めない。
type userResponse struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"isadmin"`
	IsActive  bool      `json:"isactive"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// userPageResponse はユーザー一覧のレスポンス型。
type userPageResponse struct {
	Users      []userResponse `json:"users"`
	TotalPages int            `json:"totalPages"`
}

// sessionUserResponse はサインイン中のユーザー概要。
type sessionUserResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"isadmin"`
}

type locationResponse struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zipcode string `json:"zipcode"`
}

type ratesResponse struct {
	Nightly *float64 `json:"nightly,omitempty"`
	Weekly  *float64 `json:"weekly,omitempty"`
	Monthly *float64 `json:"monthly,omitempty"`
}

type sellerInfoResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// propertyResponse は物件のレスポンス型。
type propertyResponse struct {
	ID          string             `json:"id"`
	Owner       string             `json:"owner"`
	Name        string             `json:"name"`
	Type        string             `json:"type"`
	Description string             `json:"description"`
	Location    locationResponse   `json:"location"`
	Beds        int                `json:"beds"`
	Baths       int                `json:"baths"`
	SquareFeet  int                `json:"square_feet"`
	Amenities   []string           `json:"amenities"`
	Rates       ratesResponse      `json:"rates"`
	SellerInfo  sellerInfoResponse `json:"seller_info"`
	Images      []string           `json:"images"`
	IsFeatured  bool               `json:"is_featured"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// propertyPageResponse は物件一覧のレスポンス型。
type propertyPageResponse struct {
	Properties []propertyResponse `json:"properties"`
	Total      int64              `json:"total"`
	TotalPages int                `json:"totalPages"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Name:      u.Name,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toUserPageResponse(page *model.UserPage) userPageResponse {
	users := make([]userResponse, len(page.Users))
	for i, u := range page.Users {
		users[i] = toUserResponse(u)
	}
	return userPageResponse{Users: users, TotalPages: page.TotalPages}
}

func toPropertyResponse(p *model.Property) propertyResponse {
	return propertyResponse{
		ID:          p.ID,
		Owner:       p.OwnerID,
		Name:        p.Name,
		Type:        p.Type,
		Description: p.Description,
		Location: locationResponse{
			Street:  p.Location.Street,
			City:    p.Location.City,
			State:   p.Location.State,
			Zipcode: p.Location.Zipcode,
		},
		Beds:       p.Beds,
		Baths:      p.Baths,
		SquareFeet: p.SquareFeet,
		Amenities:  nonNilStrings(p.Amenities),
		Rates: ratesResponse{
			Nightly: p.Rates.Nightly,
			Weekly:  p.Rates.Weekly,
			Monthly: p.Rates.Monthly,
		},
		SellerInfo: sellerInfoResponse{
			Name:  p.SellerInfo.Name,
			Email: p.SellerInfo.Email,
			Phone: p.SellerInfo.Phone,
		},
		Images:     nonNilStrings(p.Images),
		IsFeatured: p.IsFeatured,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func toPropertyResponses(properties []*model.Property) []propertyResponse {
	out := make([]propertyResponse, len(properties))
	for i, p := range properties {
		out[i] = toPropertyResponse(p)
	}
	return out
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// queryInt はクエリパラメータを整数で返す。未指定・不正な値は0。
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}
