package utility

import (
	"strings"
	"unicode"
)

// Slugify chuyển tên danh mục thành slug: chữ thường, ký tự không phải chữ/số thành "-".
// "Grocery & Kirana" -> "grocery-kirana"
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// NormalizeKey chuẩn hoá chuỗi để so khớp: bỏ khoảng trắng thừa, chữ thường
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// FirstNonEmpty trả về chuỗi đầu tiên khác rỗng
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// NormalizeDistrict chuẩn hoá tên quận/huyện làm khoá doanh thu ("patna " -> "PATNA")
func NormalizeDistrict(s string) string {
	s = strings.ToUpper(strings.Join(strings.Fields(s), " "))
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// NormalizeMobile bỏ khoảng trắng, dấu gạch và tiền tố quốc gia (+91 hoặc 0)
func NormalizeMobile(v string) string {
	v = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(v))
	v = strings.TrimPrefix(v, "+91")
	if len(v) == 11 && strings.HasPrefix(v, "0") {
		v = v[1:]
	}
	return v
}
