package utils

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var nonDigits = regexp.MustCompile(`\D`)

// NowUTC returns the current time in UTC. All stored timestamps use it.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// TruncateRunes cuts text to at most maxRunes characters without splitting a code point
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes])
}

// RoundMoney rounds an amount to cents
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// NormalizeEmail normalizes an email address for consistent comparison
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhoneNumber keeps a leading plus and the digits
func NormalizePhoneNumber(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	digits := nonDigits.ReplaceAllString(phone, "")
	if strings.HasPrefix(phone, "+") {
		return "+" + digits
	}
	if strings.HasPrefix(digits, "00") {
		return "+" + digits[2:]
	}
	return digits
}

type dialingCode struct {
	prefix  string
	country string
}

// dialingCodes maps international calling codes to ISO 3166-1 alpha-2 countries.
// +1 resolves to US since the plan is shared across NANP members.
var dialingCodes = []dialingCode{
	{"1", "US"}, {"7", "RU"}, {"20", "EG"}, {"27", "ZA"}, {"30", "GR"},
	{"31", "NL"}, {"32", "BE"}, {"33", "FR"}, {"34", "ES"}, {"36", "HU"},
	{"39", "IT"}, {"40", "RO"}, {"41", "CH"}, {"43", "AT"}, {"44", "GB"},
	{"45", "DK"}, {"46", "SE"}, {"47", "NO"}, {"48", "PL"}, {"49", "DE"},
	{"51", "PE"}, {"52", "MX"}, {"54", "AR"}, {"55", "BR"}, {"56", "CL"},
	{"57", "CO"}, {"60", "MY"}, {"61", "AU"}, {"62", "ID"}, {"63", "PH"},
	{"64", "NZ"}, {"65", "SG"}, {"66", "TH"}, {"81", "JP"}, {"82", "KR"},
	{"84", "VN"}, {"86", "CN"}, {"90", "TR"}, {"91", "IN"}, {"92", "PK"},
	{"234", "NG"}, {"233", "GH"}, {"212", "MA"}, {"213", "DZ"}, {"216", "TN"},
	{"221", "SN"}, {"237", "CM"}, {"250", "RW"}, {"251", "ET"}, {"254", "KE"},
	{"255", "TZ"}, {"256", "UG"}, {"260", "ZM"}, {"263", "ZW"}, {"351", "PT"},
	{"353", "IE"}, {"358", "FI"}, {"380", "UA"}, {"420", "CZ"}, {"852", "HK"},
	{"880", "BD"}, {"886", "TW"}, {"961", "LB"}, {"962", "JO"}, {"965", "KW"},
	{"966", "SA"}, {"971", "AE"}, {"972", "IL"}, {"974", "QA"},
}

// InferPhoneCountry returns the country of an international phone number by
// longest calling-code prefix. Numbers without an international prefix yield "".
func InferPhoneCountry(phone string) string {
	normalized := NormalizePhoneNumber(phone)
	if !strings.HasPrefix(normalized, "+") {
		return ""
	}
	digits := normalized[1:]

	best := ""
	bestLen := 0
	for _, code := range dialingCodes {
		if len(code.prefix) > bestLen && strings.HasPrefix(digits, code.prefix) {
			best = code.country
			bestLen = len(code.prefix)
		}
	}
	return best
}

// Contains checks if a slice contains an item
func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// RemoveDuplicates removes duplicate items from a slice, keeping first occurrences
func RemoveDuplicates[T comparable](slice []T) []T {
	seen := make(map[T]bool, len(slice))
	result := make([]T, 0, len(slice))
	for _, item := range slice {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}

// SafeStringPointer returns nil for empty strings
func SafeStringPointer(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// DerefString safely dereferences a string pointer
func DerefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
