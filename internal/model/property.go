package model

import "time"

// PropertyTypes は物件種別の一覧。
var PropertyTypes = []string{
	"Apartment",
	"Condo",
	"House",
	"Cabin Or Cottage",
	"Room",
	"Studio",
	"Other",
}

// PropertyTypeAll は検索時に種別で絞り込まないことを示す。
const PropertyTypeAll = "All"

// Location は物件の所在地。
type Location struct {
	Street  string
	City    string
	State   string
	Zipcode string
}

// Rates は物件の料金。未設定の期間はnil。
type Rates struct {
	Nightly *float64
	Weekly  *float64
	Monthly *float64
}

// SellerInfo は物件の連絡先。
type SellerInfo struct {
	Name  string
	Email string
	Phone string
}

// Property は賃貸物件を表す。
// OwnerIDはユーザーへの弱参照で、ユーザー削除時にも物件は残る。
type Property struct {
	ID          string
	OwnerID     string
	Name        string
	Type        string
	Description string
	Location    Location
	Beds        int
	Baths       int
	SquareFeet  int
	Amenities   []string
	Rates       Rates
	SellerInfo  SellerInfo
	Images      []string
	IsFeatured  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PropertySearch は物件検索条件。
type PropertySearch struct {
	Location     string
	PropertyType string
}

// FiltersByType は種別で絞り込むかを返す。
func (s PropertySearch) FiltersByType() bool {
	return s.PropertyType != "" && s.PropertyType != PropertyTypeAll
}
