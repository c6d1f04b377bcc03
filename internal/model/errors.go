package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 呼び出し元に表示できるメッセージのみを含み、内部の詳細は含めない。
type APIError struct {
	Code     string              // エラーコード
	Message  string              // エラーメッセージ
	Category string              // カテゴリ: auth, validation, user, property, system
	Action   string              // ユーザー向け対処方法
	Fields   map[string][]string // 入力検証エラーのフィールド別メッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodePropertyNotFound   = "PROPERTY_NOT_FOUND"
	ErrCodeEmailConflict      = "EMAIL_CONFLICT"
	ErrCodeUnknownProvider    = "UNKNOWN_PROVIDER"
	ErrCodeProviderFailed     = "PROVIDER_FAILED"
	ErrCodeEmailUnverified    = "EMAIL_UNVERIFIED"
	ErrCodeUnsupportedImage   = "UNSUPPORTED_IMAGE"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// ValidationMessage は入力検証エラー時の共通メッセージ。
const ValidationMessage = "Missing or invalid information in required fields."

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(fields map[string][]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  ValidationMessage,
		Category: "validation",
		Action:   "Check the highlighted fields and try again.",
		Fields:   fields,
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// 失敗の内訳（ユーザー不在、無効化済み等）は含めない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "Check your email and password. Contact support if the problem persists.",
	}
}

// NewUnauthenticatedError は未ログインエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "Authentication required",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You are not allowed to perform this action",
		Category: "auth",
		Action:   "Contact an administrator if you need access.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "user",
		Action:   "Reload the user list and try again.",
	}
}

// NewPropertyNotFoundError は物件が見つからない場合のエラーを生成する。
func NewPropertyNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePropertyNotFound,
		Message:  "Property not found",
		Category: "property",
		Action:   "Check the property ID.",
	}
}

// NewAccountExistsError はサインアップ時のメール重複エラーを生成する。
func NewAccountExistsError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailConflict,
		Message:  fmt.Sprintf("An account with email %s already exists", email),
		Category: "user",
		Action:   "Sign in with the existing account or use another email.",
	}
}

// NewUserExistsError は管理者によるユーザー作成時のメール重複エラーを生成する。
func NewUserExistsError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailConflict,
		Message:  fmt.Sprintf("User with email %q already exists", email),
		Category: "user",
		Action:   "Use another email.",
	}
}

// NewEmailTakenError はユーザー更新時のメール重複エラーを生成する。
func NewEmailTakenError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailConflict,
		Message:  fmt.Sprintf("Email %s is already taken by another user", email),
		Category: "user",
		Action:   "Use another email.",
	}
}

// NewUnknownProviderError は未対応のIdPが指定された場合のエラーを生成する。
func NewUnknownProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownProvider,
		Message:  fmt.Sprintf("Unsupported sign-in provider: %s", provider),
		Category: "auth",
		Action:   "Choose one of the offered sign-in providers.",
	}
}

// NewProviderFailedError は外部IdPとのやり取りに失敗した場合のエラーを生成する。
func NewProviderFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderFailed,
		Message:  "error 500",
		Category: "auth",
		Action:   "Try again later or sign in with your email and password.",
	}
}

// NewEmailUnverifiedError は外部IdPのメールアドレスが未検証の場合のエラーを生成する。
func NewEmailUnverifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailUnverified,
		Message:  "Your sign-in provider has not verified this email address",
		Category: "auth",
		Action:   "Verify the email address with the provider, or sign in with your email and password.",
	}
}

// NewUnsupportedImageError は受け付けない画像形式のエラーを生成する。
func NewUnsupportedImageError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedImage,
		Message:  fmt.Sprintf("Unsupported image type: %s", contentType),
		Category: "validation",
		Action:   "Upload a JPEG, PNG or WebP image.",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Wait and retry after the time given in Retry-After.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録すること。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong. Please try again later.",
		Category: "system",
		Action:   "Try again later. Contact support if the problem persists.",
	}
}
