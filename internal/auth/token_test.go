package auth

import "testing"

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("secret", 60)
	token, _, err := tm.GenerateToken("gateway", "ws-1")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Source != "gateway" || claims.WorkspaceID != "ws-1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	t.Parallel()

	token, _, err := NewTokenManager("secret-a", 60).GenerateToken("gateway", "")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := NewTokenManager("secret-b", 60).ParseToken(token); err == nil {
		t.Fatal("token signed with a different secret accepted")
	}
}

func TestTokenGarbage(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenManager("secret", 60).ParseToken("not-a-jwt"); err == nil {
		t.Fatal("malformed token accepted")
	}
}
