// Package security は利用者が入力した自由記述の無害化を提供する。
//
// フィードバックや部門紹介などの平文フィールドは StrictPolicy で全タグを除去し、
// アクティビティ説明のように整形を許す欄は許可リスト方式のポリシーを使う。
package security

import (
	"html"
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は入力文字列を保存前に無害化する。
type Sanitizer interface {
	// Sanitize は安全な文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer は全てのタグを除去し、平文として返す。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer は平文フィールド用のSanitizerを生成する。
// bluemondayは出力をHTMLエスケープするため、保存用にエスケープを戻す。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去した平文を返す。
func (s *textSanitizer) Sanitize(raw string) string {
	return html.UnescapeString(s.policy.Sanitize(raw))
}

// richTextSanitizer は許可リストのタグのみを残す。
type richTextSanitizer struct {
	policy *bluemonday.Policy
}

// NewRichTextSanitizer はアクティビティ説明などの整形済みテキスト用のSanitizerを生成する。
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, strong, em, img
//   - imgのsrcはhttpsのみ
//   - aタグには target="_blank" と rel="noopener noreferrer" を付与
func NewRichTextSanitizer() *richTextSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "ul", "ol", "li", "blockquote", "strong", "em")

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool { return true })

	return &richTextSanitizer{policy: p}
}

// Sanitize は許可リスト外の要素と属性を除去したHTMLを返す。
func (s *richTextSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}

// Nop は入力をそのまま返すSanitizer。
type Nop struct{}

func (Nop) Sanitize(raw string) string { return raw }

var (
	_ Sanitizer = (*textSanitizer)(nil)
	_ Sanitizer = (*richTextSanitizer)(nil)
	_ Sanitizer = Nop{}
)
