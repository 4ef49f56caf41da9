// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidator_Range(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		min     int
		max     int
		wantErr bool
	}{
		{"in range", 5, 1, 10, false},
		{"lower bound", 1, 1, 10, false},
		{"upper bound", 10, 1, 10, false},
		{"below", 0, 1, 10, true},
		{"above", 11, 1, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Range("field", tt.value, tt.min, tt.max)
			if tt.wantErr == v.IsValid() {
				t.Errorf("Range(%d, %d, %d): wantErr=%v, err=%v", tt.value, tt.min, tt.max, tt.wantErr, v.Err())
			}
		})
	}
}

func TestValidator_FloatRange(t *testing.T) {
	v := New()
	v.FloatRange("rate", 0.5, 0, 1)
	v.FloatRange("rate", 0, 0, 1)
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}
	v.FloatRange("rate", 1.5, 0, 1)
	if v.IsValid() {
		t.Fatal("expected error for 1.5")
	}
}

func TestValidator_NotEmpty(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"non-empty", "value", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.NotEmpty("field", tt.value)
			if tt.wantErr == v.IsValid() {
				t.Errorf("NotEmpty(%q): wantErr=%v", tt.value, tt.wantErr)
			}
		})
	}
}

func TestValidator_OneOf(t *testing.T) {
	v := New()
	v.OneOf("exporter", "grpc", []string{"grpc", "http"})
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}
	v.OneOf("exporter", "zipkin", []string{"grpc", "http"})
	if v.IsValid() {
		t.Fatal("expected error")
	}
	if !strings.Contains(v.Err().Error(), `got "zipkin"`) {
		t.Errorf("error should name the value: %v", v.Err())
	}
}

func TestValidator_NonNegative(t *testing.T) {
	v := New()
	v.NonNegative("maxBytes", 0)
	v.NonNegative("maxBytes", 1<<40)
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}
	v.NonNegative("maxBytes", -1)
	if v.IsValid() {
		t.Fatal("expected error for -1")
	}
}

func TestValidator_Custom(t *testing.T) {
	v := New()
	v.Custom("suffix", "bad..suffix", func(value interface{}) error {
		if strings.Contains(value.(string), "..") {
			return errors.New("empty label")
		}
		return nil
	})
	errs := v.Errors()
	if len(errs) != 1 || errs[0].Field != "suffix" || errs[0].Message != "empty label" {
		t.Fatalf("unexpected errors: %+v", errs)
	}
}

func TestValidator_MultipleErrors(t *testing.T) {
	v := New()
	v.NotEmpty("downloadRoot", "")
	v.Range("merge.concurrency", 0, 1, 64)

	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors()) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(verr.Errors()))
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("multiple errors should be joined: %q", err.Error())
	}
}

func TestValidator_AbsoluteDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"existing dir", dir, false},
		{"missing dir", filepath.Join(dir, "later"), false},
		{"empty", "", true},
		{"relative", "downloads", true},
		{"traversal", dir + "/../etc", true},
		{"file", file, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.AbsoluteDir("downloadRoot", tt.path)
			if tt.wantErr == v.IsValid() {
				t.Errorf("AbsoluteDir(%q): wantErr=%v, err=%v", tt.path, tt.wantErr, v.Err())
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range LogLevels {
		if _, err := ParseLogLevel(s); err != nil {
			t.Errorf("ParseLogLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for verbose")
	}
	if LogLevel("trace").IsValid() {
		t.Error("trace must not be valid")
	}
}
