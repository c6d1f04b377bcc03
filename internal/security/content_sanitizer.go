// Package security はアプリケーションのセキュリティ機能を提供する。
//
// パスワードダイジェスト、物件説明文のHTMLサニタイズ、
// 外部URLへのアクセス制限を扱う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer は利用者が入力したテキストを保存前に無害化する。
type ContentSanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
// 説明文には段落・改行・リスト・強調のみを許可し、
// リンク、画像、script、styleおよびon*属性は除去する。
func NewContentSanitizer() *ContentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")

	return &ContentSanitizer{
		rich:  p,
		plain: bluemonday.StrictPolicy(),
	}
}

// SanitizeDescription は物件説明文をサニタイズする。
func (s *ContentSanitizer) SanitizeDescription(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

// SanitizeText はタグをすべて除去したプレーンテキストを返す。
// bluemondayがエスケープした文字参照は元の文字に戻す（HTMLとして出力しない値のため）。
func (s *ContentSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(raw)))
}
