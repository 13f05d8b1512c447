package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestHashAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{
			name:    "Valid key",
			key:     "adm_0123456789abcdef",
			wantErr: false,
		},
		{
			name:    "Empty key",
			key:     "",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("HashAPIKey() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && hash == "" {
				t.Error("HashAPIKey() returned empty hash")
			}
		})
	}
}

func TestCheckAPIKey(t *testing.T) {
	key := "adm_0123456789abcdef"
	hash, _ := HashAPIKey(key)

	tests := []struct {
		name      string
		key       string
		hash      string
		wantMatch bool
		wantErr   bool
	}{
		{name: "Correct key", key: key, hash: hash, wantMatch: true},
		{name: "Incorrect key", key: "wrong", hash: hash, wantMatch: false},
		{name: "Malformed hash", key: key, hash: "not-a-hash", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := CheckAPIKey(tt.key, tt.hash)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if match != tt.wantMatch {
				t.Errorf("CheckAPIKey() match = %v, want %v", match, tt.wantMatch)
			}
		})
	}
}

func TestHandoffToken(t *testing.T) {
	secret := "test-secret"
	reference := "ETG-1712345678901-ABC1234"
	issuer := NewHandoffIssuer(secret, time.Hour)

	token, err := issuer.SignHandoff(reference, decimal.NewFromInt(26875), "ada@example.com")
	if err != nil {
		t.Fatalf("SignHandoff() error = %v", err)
	}

	claims, err := issuer.Validate(token, reference)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Amount != "26875" || claims.Email != "ada@example.com" {
		t.Errorf("Unexpected claims %+v", claims)
	}

	if _, err := issuer.Validate(token, "ETG-1712345678901-OTHER00"); !errors.Is(err, ErrHandoffMismatch) {
		t.Errorf("Expected ErrHandoffMismatch, got %v", err)
	}

	if _, err := ValidateHandoffToken(token, "wrong-secret"); err == nil {
		t.Error("Expected error for wrong secret")
	}
}

func TestHandoffTokenExpired(t *testing.T) {
	token, err := MakeHandoffToken("PSK-1-ABCDEFG", decimal.NewFromInt(1), "a@b.co", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("MakeHandoffToken() error = %v", err)
	}

	if _, err := ValidateHandoffToken(token, "secret"); err == nil {
		t.Error("Expected error for expired token")
	}
}

func BenchmarkCheckAPIKey(b *testing.B) {
	hash, _ := HashAPIKey("adm_0123456789abcdef")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CheckAPIKey("adm_0123456789abcdef", hash)
	}
}

func BenchmarkMakeHandoffToken(b *testing.B) {
	amount := decimal.NewFromInt(53750)
	for i := 0; i < b.N; i++ {
		MakeHandoffToken("PSK-1-ABCDEFG", amount, "a@b.co", "secret", time.Hour)
	}
}
