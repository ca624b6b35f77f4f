// Package slug 產生網址用的代稱及搜尋用的正規化字串
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold 轉小寫並移除重音符號，例如 "Café" -> "cafe"
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Make 保留字母與數字，其餘字元以單一'-'連接
func Make(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range Fold(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// MakeOr 在s無法產生代稱時使用fallback
func MakeOr(s, fallback string) string {
	if slug := Make(s); slug != "" {
		return slug
	}
	return Make(fallback)
}
