package util

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTags(t *testing.T) {
	tags := ExtractTags("summer #Beach vibes #sunset. again #Beach")
	assert.Equal(t, []string{"Beach", "sunset"}, tags)
	assert.Empty(t, ExtractTags("no tags here"))
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("18:30")
	require.NoError(t, err)
	assert.Equal(t, 18, h)
	assert.Equal(t, 30, m)

	_, _, err = ParseClock("25:00")
	assert.Error(t, err)
	_, _, err = ParseClock("noon")
	assert.Error(t, err)
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	// 2026-03-01 20:00 UTC 在 UTC+8 已是 3 月 2 日
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	got := StartOfDay(at, loc)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc), got)
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", TruncateUTF8("abc", 10))
	assert.Equal(t, "ab", TruncateUTF8("abc", 2))
	assert.Empty(t, TruncateUTF8("abc", 0))

	// "失" 占 3 字节，1024 落在字符中间
	long := "xx" + strings.Repeat("失", 400)
	got := TruncateUTF8(long, 1024)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 1024)
	assert.Equal(t, 2+3*340, len(got))
}

func TestValidateDTO(t *testing.T) {
	type req struct {
		Platform string `validate:"required,oneof=instagram facebook"`
	}
	assert.NoError(t, ValidateDTO(&req{Platform: "instagram"}))
	err := ValidateDTO(&req{Platform: "tiktok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Platform")
}
