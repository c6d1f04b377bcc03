package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/rentals/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 入力検証エラーの場合はerrorに"validation"、fieldsにフィールド別メッセージを含む。
type ErrorResponseBody struct {
	Success  bool                `json:"success"`
	Error    string              `json:"error,omitempty"`
	Code     string              `json:"code"`
	Message  string              `json:"message"`
	Category string              `json:"category"`
	Action   string              `json:"action"`
	Fields   map[string][]string `json:"fields,omitempty"`
}

// StatusCode はエラーコードに対応するHTTPステータスコードを返す。
func StatusCode(code string) int {
	switch code {
	case model.ErrCodeValidationFailed, model.ErrCodeUnsupportedImage:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeEmailUnverified:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodePropertyNotFound, model.ErrCodeUnknownProvider:
		return http.StatusNotFound
	case model.ErrCodeEmailConflict:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeProviderFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	body := ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Fields:   apiErr.Fields,
	}
	if apiErr.Code == model.ErrCodeValidationFailed {
		body.Error = "validation"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// WriteError はサービス層のエラーをレスポンスに変換する。
// *model.APIError以外のエラーは詳細をログにのみ記録し、共通の内部エラーを返す。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusCode(apiErr.Code), apiErr)
		return
	}

	slog.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
