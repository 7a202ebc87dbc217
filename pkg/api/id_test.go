package api

import (
	"testing"
)

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	if !ValidateSessionID(id) {
		t.Errorf("NewSessionID() = %q, want valid session ID", id)
	}
}

func TestNewSessionIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		if seen[id] {
			t.Fatalf("duplicate session ID generated: %q", id)
		}
		seen[id] = true
	}
}

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "sess_abcdefghijklmnopqrstuvwx", true},
		{"valid mixed case", "sess_AbCdEfGhIjKlMnOpQrStUvWx", true},
		{"valid digits", "sess_123456789012345678901234", true},
		{"wrong prefix", "resp_abcdefghijklmnopqrstuvwx", false},
		{"no prefix", "abcdefghijklmnopqrstuvwxyz1234", false},
		{"too short", "sess_abc", false},
		{"too long", "sess_abcdefghijklmnopqrstuvwxy", false},
		{"special chars", "sess_abcdefghijklmnopqrstuv!@", false},
		{"empty", "", false},
		{"prefix only", "sess_", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateSessionID(tt.id); got != tt.want {
				t.Errorf("ValidateSessionID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
