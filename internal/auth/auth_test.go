package auth

import (
	"context"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	t.Setenv("ASSETBLOCK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	token, err := GenerateToken("u1", "alice@example.com", []string{"Admin", "client", "admin"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Email != "alice@example.com" {
		t.Fatalf("unexpected email: %s", claims.Email)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("roles not deduplicated: %v", claims.Roles)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Setenv("ASSETBLOCK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := ParseAndValidate(""); err != ErrInvalidToken {
		t.Fatalf("empty token: expected ErrInvalidToken, got %v", err)
	}
	if _, err := ParseAndValidate("not.a.token"); err != ErrInvalidToken {
		t.Fatalf("garbage token: expected ErrInvalidToken, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	t.Setenv("ASSETBLOCK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("u1", "a@x.com", nil, -time.Minute); err == nil {
		t.Fatal("non-positive ttl must be rejected")
	}
}

func TestSupportsTokens(t *testing.T) {
	t.Setenv("ASSETBLOCK_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
	if SupportsTokens() {
		t.Fatal("SupportsTokens must be false without a secret")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithPrincipal(ctx, Principal{UID: "u7", Email: "x@y.com", Roles: []string{"Admin", "Admin", "client"}})

	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UID != "u7" || p.Email != "x@y.com" {
		t.Fatalf("unexpected principal: %+v ok=%v", p, ok)
	}
	if len(p.Roles) != 2 {
		t.Fatalf("expected deduplicated roles, got %v", p.Roles)
	}
	if !p.HasRole("admin") || !p.HasRole("client") {
		t.Fatalf("HasRole missing expected roles: %v", p.Roles)
	}
	if p.HasRole("operator") {
		t.Fatal("unexpected role found")
	}

	if id, ok := UserIDFromContext(ctx); !ok || id != "u7" {
		t.Fatalf("unexpected uid: %s ok=%v", id, ok)
	}
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("empty context must not yield a principal")
	}
}
