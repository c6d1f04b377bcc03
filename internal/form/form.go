// Package form は外部入力（JSONボディまたはフォーム送信）を操作ごとの
// 型付きレコードに正規化し、入力検証を行う。
package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/hitoshi/rentals/internal/model"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 20

// valuesBinder はフォーム送信値から自身を組み立てる。
type valuesBinder interface {
	bindValues(v url.Values)
}

// normalizer は検証前に入力を正規化する。
type normalizer interface {
	normalize()
}

// Bind はリクエストの入力をdstに読み込み、正規化する。
// Content-Typeがapplication/jsonの場合はJSONとして、それ以外はフォームとして扱う。
// ボディが読み取れない場合は入力検証エラーを返す。
func Bind(r *http.Request, dst valuesBinder) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		if err := dec.Decode(dst); err != nil {
			return model.NewValidationError(map[string][]string{
				"body": {"invalid JSON body"},
			})
		}
	} else {
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
				return model.NewValidationError(map[string][]string{
					"body": {"invalid form body"},
				})
			}
		} else if err := r.ParseForm(); err != nil {
			return model.NewValidationError(map[string][]string{
				"body": {"invalid form body"},
			})
		}
		dst.bindValues(r.PostForm)
	}

	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	return nil
}

// Check はValidatableを検証し、失敗時はフィールド別メッセージを持つ
// *model.APIErrorを返す。
func Check(v validation.Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}

	var internal validation.InternalError
	if errors.As(err, &internal) {
		return fmt.Errorf("failed to validate input: %w", err)
	}

	fields := map[string][]string{}
	var errs validation.Errors
	if errors.As(err, &errs) {
		flatten("", errs, fields)
	} else {
		fields["_"] = []string{err.Error()}
	}
	return model.NewValidationError(fields)
}

func flatten(prefix string, errs validation.Errors, out map[string][]string) {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		err := errs[field]
		if err == nil {
			continue
		}
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		var nested validation.Errors
		if errors.As(err, &nested) {
			flatten(key, nested, out)
			continue
		}
		out[key] = append(out[key], err.Error())
	}
}

// NormalizeEmail はメールアドレスを比較用の正規形（前後空白除去・小文字）にする。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// parseBool はフォームのチェックボックス値を真偽値に変換する。
// 未送信、"false"、"off"、"0"はfalseとして扱う。
func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "false", "off", "0", "no":
		return false
	}
	return true
}

// parseInt はフォームの数値を変換する。変換できない場合は-1を返し、検証で弾く。
func parseInt(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

// parseOptionalFloat はフォームの金額を変換する。空の場合はnil。
func parseOptionalFloat(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		invalid := -1.0
		return &invalid
	}
	return &f
}
