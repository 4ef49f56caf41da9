// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testKey = "MEDIAGATE_TEST_VALUE"

func TestParseBool(t *testing.T) {
	tests := []struct {
		raw  string
		def  bool
		want bool
	}{
		{"true", false, true},
		{"YES", false, true},
		{"1", false, true},
		{"no", true, false},
		{"0", true, false},
		{"maybe", true, true},
		{"", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv(testKey, tt.raw)
			assert.Equal(t, tt.want, ParseBool(testKey, tt.def))
		})
	}
}

func TestParseNumbersFallBack(t *testing.T) {
	t.Setenv(testKey, "12")
	assert.Equal(t, 12, ParseInt(testKey, 1))
	assert.Equal(t, int64(12), ParseInt64(testKey, 1))
	assert.InDelta(t, 12.0, ParseFloat(testKey, 1), 1e-9)

	t.Setenv(testKey, "twelve")
	assert.Equal(t, 1, ParseInt(testKey, 1))
	assert.Equal(t, int64(1), ParseInt64(testKey, 1))
	assert.InDelta(t, 1.0, ParseFloat(testKey, 1), 1e-9)
}

func TestParseDuration(t *testing.T) {
	t.Setenv(testKey, "90s")
	assert.Equal(t, 90*time.Second, ParseDuration(testKey, time.Second))

	t.Setenv(testKey, "90")
	assert.Equal(t, time.Second, ParseDuration(testKey, time.Second))
}

func TestParseList(t *testing.T) {
	t.Setenv(testKey, "a.com, ,b.com,")
	assert.Equal(t, []string{"a.com", "b.com"}, ParseList(testKey, nil))

	assert.Equal(t, []string{"x"}, ParseList("MEDIAGATE_TEST_UNSET", []string{"x"}))
}

func TestParseStringUnset(t *testing.T) {
	assert.Equal(t, "fallback", ParseString("MEDIAGATE_TEST_UNSET", "fallback"))
}
