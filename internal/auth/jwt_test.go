package auth

import (
	"testing"
	"time"

	"github.com/erazemk/zaloga/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, time.Hour, 1, "admin", model.RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != 1 {
		t.Errorf("expected user_id 1, got %d", claims.UserID)
	}
	if claims.Username != "admin" {
		t.Errorf("expected username 'admin', got %q", claims.Username)
	}
	if claims.Role != model.RoleAdmin {
		t.Errorf("expected role 'admin', got %q", claims.Role)
	}
	if claims.ID == "" {
		t.Error("expected a token ID")
	}
}

func TestTokensHaveUniqueIDs(t *testing.T) {
	a, _ := GenerateToken("s", time.Hour, 1, "u", model.RoleStaff)
	b, _ := GenerateToken("s", time.Hour, 1, "u", model.RoleStaff)
	ca, _ := ValidateToken("s", a)
	cb, _ := ValidateToken("s", b)
	if ca.ID == cb.ID {
		t.Error("expected distinct JTIs")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", time.Hour, 1, "admin", model.RoleAdmin)

	if _, err := ValidateToken("secret2", token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	if _, err := ValidateToken("secret", "not-a-token"); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestNonPositiveTTLUsesDefault(t *testing.T) {
	token, _ := GenerateToken("secret", -time.Hour, 1, "u", model.RoleStaff)
	if _, err := ValidateToken("secret", token); err != nil {
		t.Fatalf("expected default TTL to apply, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := "test"
	ttl := 30 * time.Minute
	token, _ := GenerateToken(secret, ttl, 1, "test", model.RoleStaff)
	claims, _ := ValidateToken(secret, token)

	diff := time.Now().Add(ttl).Sub(claims.ExpiresAt.Time)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}
