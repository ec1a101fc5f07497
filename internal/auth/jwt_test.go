package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testAddr = "0:abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("secret", testAddr, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.Address != testAddr {
		t.Errorf("address = %q, want %q", claims.Address, testAddr)
	}
	if claims.Subject != testAddr {
		t.Errorf("subject = %q, want %q", claims.Subject, testAddr)
	}
}

func TestParseJWTRejects(t *testing.T) {
	good, _ := GenerateJWT("secret", testAddr, time.Hour)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Address: testAddr,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			Issuer:    issuer,
		},
	})
	expiredStr, _ := expired.SignedString([]byte("secret"))

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Address:          testAddr,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	})
	foreignStr, _ := foreign.SignedString([]byte("secret"))

	anonymous := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	})
	anonymousStr, _ := anonymous.SignedString([]byte("secret"))

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", good},
		{"expired", "secret", expiredStr},
		{"wrong issuer", "secret", foreignStr},
		{"no address", "secret", anonymousStr},
		{"garbage", "secret", "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJWT(tt.secret, tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}
