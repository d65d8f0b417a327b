// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"all interfaces", ":8080", false},
		{"loopback", "127.0.0.1:9090", false},
		{"ephemeral", "127.0.0.1:0", false},
		{"empty", "", true},
		{"missing port", "localhost", true},
		{"non numeric port", "localhost:http", true},
		{"port too large", ":70000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.ListenAddr("listenAddr", tt.addr)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Range(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		wantErr bool
	}{
		{"lower bound", 0, false},
		{"upper bound", 10, false},
		{"below", -1, true},
		{"above", 11, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Range("n", tt.value, 0, 10)
			if tt.wantErr == v.IsValid() {
				t.Errorf("Range(%d) valid=%v, wantErr=%v", tt.value, v.IsValid(), tt.wantErr)
			}
		})
	}
}

func TestValidator_FloatRange(t *testing.T) {
	v := New()
	v.FloatRange("threshold", 0, 0, 10)
	if v.IsValid() {
		t.Error("zero must be rejected by an exclusive lower bound")
	}

	v = New()
	v.FloatRange("threshold", 10, 0, 10)
	if !v.IsValid() {
		t.Errorf("upper bound must be inclusive: %v", v.Err())
	}
}

func TestValidator_OneOf(t *testing.T) {
	v := New()
	v.OneOf("strategy", "fifo", []string{"capacity_aware", "fifo"})
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}

	v.OneOf("strategy", "random", []string{"capacity_aware", "fifo"})
	if v.IsValid() {
		t.Fatal("expected error for unknown value")
	}
	if !strings.Contains(v.Err().Error(), `"random"`) {
		t.Errorf("error should quote the value: %v", v.Err())
	}
}

func TestValidator_PositiveNonNegative(t *testing.T) {
	v := New()
	v.Positive("a", 1)
	v.NonNegative("b", 0)
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}

	v.Positive("c", 0)
	v.NonNegative("d", -1)
	if got := len(v.Errors()); got != 2 {
		t.Errorf("expected 2 errors, got %d", got)
	}
}

func TestValidator_MinDuration(t *testing.T) {
	v := New()
	v.MinDuration("interval", 5*time.Millisecond, 10*time.Millisecond)
	if v.IsValid() {
		t.Error("expected error for short duration")
	}
}

func TestValidator_LogLevel(t *testing.T) {
	v := New()
	v.LogLevel("logLevel", "")
	v.LogLevel("logLevel", "debug")
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}
	v.LogLevel("logLevel", "verbose")
	if v.IsValid() {
		t.Error("expected error for unknown level")
	}
}

func TestValidator_Custom(t *testing.T) {
	v := New()
	v.Custom("x", 3, func(val interface{}) error {
		if val.(int)%2 == 1 {
			return errors.New("must be even")
		}
		return nil
	})
	if v.IsValid() {
		t.Error("expected custom error")
	}
}

func TestValidationError_Aggregates(t *testing.T) {
	v := New()
	if v.Err() != nil {
		t.Fatal("empty validator must return nil error")
	}

	v.AddError("a", "bad", 1)
	v.AddError("b", "worse", 2)
	err := v.Err()

	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(ve.Errors()) != 2 {
		t.Errorf("expected 2 errors, got %d", len(ve.Errors()))
	}
	want := "validation failed for a: bad; validation failed for b: worse"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
