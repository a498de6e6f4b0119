package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestInferPhoneCountry(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"kenya", "+254712345678", "KE"},
		{"kenya with spaces", "+254 712 345 678", "KE"},
		{"double zero prefix", "00254712345678", "KE"},
		{"longest prefix wins over single digit", "+2348012345678", "NG"},
		{"united kingdom", "+44 20 7946 0958", "GB"},
		{"north america", "+1 (415) 555-2671", "US"},
		{"local number", "0712345678", ""},
		{"unknown code", "+999123", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferPhoneCountry(tt.phone))
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "hello", TruncateRunes("hello", 10))
	assert.Equal(t, "hel", TruncateRunes("hello", 3))
	assert.Equal(t, "", TruncateRunes("hello", 0))
	// multi-byte characters are never split
	assert.Equal(t, "héé", TruncateRunes("héééé", 3))
	assert.Equal(t, "🎉🎉", TruncateRunes("🎉🎉🎉", 2))
}

func TestRoundMoney(t *testing.T) {
	assert.True(t, decimal.RequireFromString("12.50").Equal(RoundMoney(decimal.RequireFromString("12.5"))))
	assert.True(t, decimal.RequireFromString("0.01").Equal(RoundMoney(decimal.RequireFromString("0.005"))))
	assert.True(t, decimal.RequireFromString("3.33").Equal(RoundMoney(decimal.RequireFromString("3.333"))))
}

func TestNormalizePhoneNumber(t *testing.T) {
	assert.Equal(t, "+254712345678", NormalizePhoneNumber(" +254-712-345-678 "))
	assert.Equal(t, "+447946", NormalizePhoneNumber("00447946"))
	assert.Equal(t, "0712345678", NormalizePhoneNumber("0712 345 678"))
	assert.Equal(t, "", NormalizePhoneNumber("  "))
}

func TestSliceHelpers(t *testing.T) {
	assert.True(t, Contains([]string{"a", "b"}, "b"))
	assert.False(t, Contains([]int{1, 2}, 3))
	assert.Equal(t, []string{"a", "b", "c"}, RemoveDuplicates([]string{"a", "b", "a", "c", "b"}))
	assert.Nil(t, SafeStringPointer(""))
	assert.Equal(t, "x", DerefString(SafeStringPointer("x")))
}
