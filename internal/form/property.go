package form

import (
	"errors"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"

	"github.com/hitoshi/rentals/internal/model"
	"github.com/hitoshi/rentals/internal/security"
)

// DefaultPhoneRegion は国番号なしの電話番号を解釈する地域。
const DefaultPhoneRegion = "US"

// maxImages は1物件あたりの画像数の上限。
const maxImages = 4

// Location は物件所在地の入力。
type Location struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zipcode string `json:"zipcode"`
}

// Validate は入力を検証する。
func (l Location) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Street, validation.Length(0, 200)),
		validation.Field(&l.City, validation.Required, validation.Length(1, 100)),
		validation.Field(&l.State, validation.Required, validation.Length(1, 100)),
		validation.Field(&l.Zipcode, validation.Length(0, 20)),
	)
}

// Rates は料金の入力。
type Rates struct {
	Nightly *float64 `json:"nightly"`
	Weekly  *float64 `json:"weekly"`
	Monthly *float64 `json:"monthly"`
}

// Validate は入力を検証する。少なくとも1つの料金が必要。
func (r Rates) Validate() error {
	if r.Nightly == nil && r.Weekly == nil && r.Monthly == nil {
		return errors.New("at least one rate is required")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Nightly, validation.By(nonNegativeRate)),
		validation.Field(&r.Weekly, validation.By(nonNegativeRate)),
		validation.Field(&r.Monthly, validation.By(nonNegativeRate)),
	)
}

// SellerInfo は連絡先の入力。
type SellerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Validate は入力を検証する。
func (s SellerInfo) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Name, validation.Length(0, 100)),
		validation.Field(&s.Email, is.Email),
		validation.Field(&s.Phone, validation.By(validPhone)),
	)
}

// Property は物件登録の入力。
type Property struct {
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Location    Location   `json:"location"`
	Beds        int        `json:"beds"`
	Baths       int        `json:"baths"`
	SquareFeet  int        `json:"square_feet"`
	Amenities   []string   `json:"amenities"`
	Rates       Rates      `json:"rates"`
	SellerInfo  SellerInfo `json:"seller_info"`
	Images      []string   `json:"images"`
}

func (f *Property) bindValues(v url.Values) {
	f.Name = v.Get("name")
	f.Type = v.Get("type")
	f.Description = v.Get("description")
	f.Location = Location{
		Street:  v.Get("location.street"),
		City:    v.Get("location.city"),
		State:   v.Get("location.state"),
		Zipcode: v.Get("location.zipcode"),
	}
	f.Beds = parseInt(v.Get("beds"))
	f.Baths = parseInt(v.Get("baths"))
	f.SquareFeet = parseInt(v.Get("square_feet"))
	f.Amenities = v["amenities"]
	f.Rates = Rates{
		Nightly: parseOptionalFloat(v.Get("rates.nightly")),
		Weekly:  parseOptionalFloat(v.Get("rates.weekly")),
		Monthly: parseOptionalFloat(v.Get("rates.monthly")),
	}
	f.SellerInfo = SellerInfo{
		Name:  v.Get("seller_info.name"),
		Email: v.Get("seller_info.email"),
		Phone: v.Get("seller_info.phone"),
	}
	f.Images = v["images"]
}

func (f *Property) normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Type = strings.TrimSpace(f.Type)
	f.Location.Street = strings.TrimSpace(f.Location.Street)
	f.Location.City = strings.TrimSpace(f.Location.City)
	f.Location.State = strings.TrimSpace(f.Location.State)
	f.Location.Zipcode = strings.TrimSpace(f.Location.Zipcode)
	f.SellerInfo.Name = strings.TrimSpace(f.SellerInfo.Name)
	f.SellerInfo.Email = NormalizeEmail(f.SellerInfo.Email)
	f.SellerInfo.Phone = NormalizePhone(f.SellerInfo.Phone)
	f.Amenities = compact(f.Amenities)
	f.Images = compact(f.Images)
}

// Validate は入力を検証する。
func (f Property) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&f.Type, validation.Required, validation.In(propertyTypes()...)),
		validation.Field(&f.Description, validation.Length(0, 5000)),
		validation.Field(&f.Location),
		validation.Field(&f.Beds, validation.Min(0)),
		validation.Field(&f.Baths, validation.Min(0)),
		validation.Field(&f.SquareFeet, validation.Min(0)),
		validation.Field(&f.Rates),
		validation.Field(&f.SellerInfo),
		validation.Field(&f.Images, validation.Length(0, maxImages), validation.By(publicURLs)),
	)
}

// Model は入力から物件モデルを組み立てる。所有者とタイムスタンプは呼び出し側で設定する。
func (f Property) Model() *model.Property {
	return &model.Property{
		Name:        f.Name,
		Type:        f.Type,
		Description: f.Description,
		Location: model.Location{
			Street:  f.Location.Street,
			City:    f.Location.City,
			State:   f.Location.State,
			Zipcode: f.Location.Zipcode,
		},
		Beds:       f.Beds,
		Baths:      f.Baths,
		SquareFeet: f.SquareFeet,
		Amenities:  f.Amenities,
		Rates: model.Rates{
			Nightly: f.Rates.Nightly,
			Weekly:  f.Rates.Weekly,
			Monthly: f.Rates.Monthly,
		},
		SellerInfo: model.SellerInfo{
			Name:  f.SellerInfo.Name,
			Email: f.SellerInfo.Email,
			Phone: f.SellerInfo.Phone,
		},
		Images: f.Images,
	}
}

// NormalizePhone は電話番号をE.164形式に変換する。解釈できない場合はそのまま返し、検証で弾く。
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func validPhone(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	num, err := phonenumbers.Parse(s, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return errors.New("must be a valid phone number")
	}
	return nil
}

func nonNegativeRate(value interface{}) error {
	f, _ := value.(*float64)
	if f != nil && *f < 0 {
		return errors.New("must be no less than 0")
	}
	return nil
}

func publicURLs(value interface{}) error {
	urls, _ := value.([]string)
	for _, u := range urls {
		if err := security.ValidatePublicURL(u); err != nil {
			return errors.New("must be public http(s) image URLs")
		}
	}
	return nil
}

func propertyTypes() []interface{} {
	types := make([]interface{}, len(model.PropertyTypes))
	for i, t := range model.PropertyTypes {
		types[i] = t
	}
	return types
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ImageUpload は画像アップロードURL発行の入力。
type ImageUpload struct {
	ContentType string `json:"content_type"`
}

func (f *ImageUpload) bindValues(v url.Values) {
	f.ContentType = v.Get("content_type")
}

func (f *ImageUpload) normalize() {
	f.ContentType = strings.ToLower(strings.TrimSpace(f.ContentType))
}

// Validate は入力を検証する。形式の可否は画像ストレージ側で判定する。
func (f ImageUpload) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.ContentType, validation.Required),
	)
}
