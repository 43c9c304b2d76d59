package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testJWTConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
}

func TestVerifyCredential_RoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, Identity{UserID: "m1", DisplayName: "Maya", Role: RoleMentor, Age: 34})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	id, err := NewJWTVerifier(cfg).VerifyCredential(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "m1" || id.DisplayName != "Maya" || id.Role != RoleMentor || id.Age != 34 {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestVerifyCredential_Rejects(t *testing.T) {
	cfg := testJWTConfig()
	verifier := NewJWTVerifier(cfg)

	expired, _ := GenerateToken(&JWTConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, Audience: cfg.Audience, TTL: -time.Minute},
		Identity{UserID: "c1", Role: RoleChild})
	wrongSecret, _ := GenerateToken(&JWTConfig{Secret: []byte("other"), Issuer: cfg.Issuer, Audience: cfg.Audience, TTL: time.Hour},
		Identity{UserID: "c1", Role: RoleChild})
	wrongIssuer, _ := GenerateToken(&JWTConfig{Secret: cfg.Secret, Issuer: "evil", Audience: cfg.Audience, TTL: time.Hour},
		Identity{UserID: "c1", Role: RoleChild})
	badRole, _ := GenerateToken(cfg, Identity{UserID: "c1", Role: Role("superuser")})

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "child",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noSubjectToken, _ := noSubject.SignedString(cfg.Secret)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-jwt"},
		{name: "expired", token: expired},
		{name: "wrong secret", token: wrongSecret},
		{name: "wrong issuer", token: wrongIssuer},
		{name: "unknown role", token: badRole},
		{name: "missing subject", token: noSubjectToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := verifier.VerifyCredential(context.Background(), tt.token); !errors.Is(err, ErrInvalidCredential) {
				t.Fatalf("expected ErrInvalidCredential, got %v", err)
			}
		})
	}
}

func TestVerifyCredential_DefaultsDisplayName(t *testing.T) {
	cfg := testJWTConfig()
	token, err := GenerateToken(cfg, Identity{UserID: "c7", Role: RoleChild})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	id, err := NewJWTVerifier(cfg).VerifyCredential(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.DisplayName != "c7" {
		t.Fatalf("expected display name to fall back to subject, got %q", id.DisplayName)
	}
}

func TestIdentityCanComment(t *testing.T) {
	cases := map[Role]bool{
		RoleChild:  false,
		RoleMentor: true,
		RoleAdmin:  true,
	}
	for role, want := range cases {
		if got := (Identity{Role: role}).CanComment(); got != want {
			t.Fatalf("role %s: expected %v, got %v", role, want, got)
		}
	}
}
