package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)

	t.Run("round trip", func(t *testing.T) {
		hash, err := h.Hash("Secret123")
		if err != nil {
			t.Fatalf("Hash() error: %v", err)
		}
		if hash == "Secret123" {
			t.Fatal("Hash() returned the plaintext")
		}
		if !h.Verify("Secret123", hash) {
			t.Error("Verify() = false for the correct password")
		}
		if h.Verify("secret123", hash) {
			t.Error("Verify() = true for a wrong password")
		}
	})

	t.Run("salted", func(t *testing.T) {
		a, err := h.Hash("Secret123")
		if err != nil {
			t.Fatalf("Hash() error: %v", err)
		}
		b, err := h.Hash("Secret123")
		if err != nil {
			t.Fatalf("Hash() error: %v", err)
		}
		if a == b {
			t.Error("two hashes of the same password are identical")
		}
	})

	t.Run("malformed hash", func(t *testing.T) {
		if h.Verify("Secret123", "not-a-bcrypt-hash") {
			t.Error("Verify() = true for a malformed hash")
		}
	})

	t.Run("too long", func(t *testing.T) {
		if _, err := h.Hash(strings.Repeat("a", 100)); err == nil {
			t.Error("Hash() expected error for a password over 72 bytes")
		}
	})
}

func TestPasswordHasher_Length(t *testing.T) {
	h := NewPasswordHasher(4)

	longest := "Aa1" + strings.Repeat("x", MaxPasswordBytes-3)
	hash, err := h.Hash(longest)
	if err != nil {
		t.Fatalf("Hash() at %d bytes error: %v", MaxPasswordBytes, err)
	}
	if !h.Verify(longest, hash) {
		t.Error("Verify() = false for a password at the limit")
	}

	if _, err := h.Hash(longest + "x"); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("Hash() over the limit error = %v, want ErrPasswordTooLong", err)
	}
	// 25 three-byte runes: 25 characters, 75 bytes
	if _, err := h.Hash(strings.Repeat("€", 25)); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("Hash() multi-byte error = %v, want ErrPasswordTooLong", err)
	}
}

func TestNewPasswordHasher_DefaultCost(t *testing.T) {
	if got := NewPasswordHasher(0).cost; got != DefaultBcryptCost {
		t.Errorf("cost = %d, want %d", got, DefaultBcryptCost)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"lowercase scheme", "bearer abc", "abc", false},
		{"surrounding space", "Bearer   abc  ", "abc", false},
		{"empty", "", "", true},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", true},
		{"no token", "Bearer ", "", true},
		{"no space", "Bearerabc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearerToken(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractBearerToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
