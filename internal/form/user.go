package form

import (
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var (
	nameRules     = []validation.Rule{validation.Required, validation.Length(1, 50)}
	emailRules    = []validation.Rule{validation.Required, validation.Length(3, 254), is.Email}
	passwordRules = []validation.Rule{validation.Length(6, 0), validation.By(maxBytes(MaxPasswordBytes))}
)

// MaxPasswordBytes はbcryptが受け付けるパスワードの最大バイト数。
const MaxPasswordBytes = 72

// maxBytes は文字数ではなくバイト数で上限を検証するルールを返す。
func maxBytes(n int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(s) > n {
			return fmt.Errorf("must be no more than %d bytes", n)
		}
		return nil
	}
}

// SignUp はサインアップの入力。
type SignUp struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (f *SignUp) bindValues(v url.Values) {
	f.FirstName = v.Get("first_name")
	f.LastName = v.Get("last_name")
	f.Email = v.Get("email")
	f.Password = v.Get("password")
}

func (f *SignUp) normalize() {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = NormalizeEmail(f.Email)
}

// Validate は入力を検証する。
func (f SignUp) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.FirstName, nameRules...),
		validation.Field(&f.LastName, nameRules...),
		validation.Field(&f.Email, emailRules...),
		validation.Field(&f.Password, append([]validation.Rule{validation.Required}, passwordRules...)...),
	)
}

// SignIn はサインインの入力。
type SignIn struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (f *SignIn) bindValues(v url.Values) {
	f.Email = v.Get("email")
	f.Password = v.Get("password")
}

func (f *SignIn) normalize() {
	f.Email = NormalizeEmail(f.Email)
}

// Validate は入力を検証する。パスワードは形式のみを確認し、長さは問わない。
func (f SignIn) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Email, emailRules...),
		validation.Field(&f.Password, validation.Required),
	)
}

// CreateUser は管理者によるユーザー作成の入力。
type CreateUser struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	IsAdmin   bool   `json:"isadmin"`
}

func (f *CreateUser) bindValues(v url.Values) {
	f.FirstName = v.Get("first_name")
	f.LastName = v.Get("last_name")
	f.Email = v.Get("email")
	f.Password = v.Get("password")
	f.IsAdmin = parseBool(v.Get("isadmin"))
}

func (f *CreateUser) normalize() {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = NormalizeEmail(f.Email)
}

// Validate は入力を検証する。
func (f CreateUser) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.FirstName, nameRules...),
		validation.Field(&f.LastName, nameRules...),
		validation.Field(&f.Email, emailRules...),
		validation.Field(&f.Password, append([]validation.Rule{validation.Required}, passwordRules...)...),
	)
}

// UpdateUser は管理者によるユーザー更新の入力。
// Passwordが空（空白のみを含む）の場合は既存のダイジェストを維持する。
type UpdateUser struct {
	ID        string `json:"userid"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"isadmin"`
	IsActive  bool   `json:"isactive"`
	Password  string `json:"password"`
}

func (f *UpdateUser) bindValues(v url.Values) {
	f.ID = v.Get("userid")
	f.FirstName = v.Get("first_name")
	f.LastName = v.Get("last_name")
	f.Email = v.Get("email")
	f.IsAdmin = parseBool(v.Get("isadmin"))
	f.IsActive = parseBool(v.Get("isactive"))
	f.Password = v.Get("password")
}

func (f *UpdateUser) normalize() {
	f.ID = strings.TrimSpace(f.ID)
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = NormalizeEmail(f.Email)
	if strings.TrimSpace(f.Password) == "" {
		f.Password = ""
	}
}

// ChangesPassword は新しいパスワードが指定されたかを返す。
func (f UpdateUser) ChangesPassword() bool {
	return f.Password != ""
}

// Validate は入力を検証する。
func (f UpdateUser) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.ID, validation.Required),
		validation.Field(&f.FirstName, nameRules...),
		validation.Field(&f.LastName, nameRules...),
		validation.Field(&f.Email, emailRules...),
		validation.Field(&f.Password, passwordRules...),
	)
}

// UserStatus は有効状態の切り替えの入力。
type UserStatus struct {
	IsActive *bool `json:"isactive"`
}

func (f *UserStatus) bindValues(v url.Values) {
	if _, ok := v["isactive"]; ok {
		active := parseBool(v.Get("isactive"))
		f.IsActive = &active
	}
}

// Validate は入力を検証する。
func (f UserStatus) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.IsActive, validation.NotNil),
	)
}
