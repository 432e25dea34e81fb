package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickwarner/flagdesk/internal/models"
)

var linUser = models.User{ID: 7, Name: "Dr. Lin", Role: models.RoleFaculty}

func TestGenerateVerify(t *testing.T) {
	secret := []byte("secret")
	tok, err := Generate(linUser, secret, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	c, err := Verify(tok, secret)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if c.UserID != 7 || c.Name != "Dr. Lin" || c.Role != models.RoleFaculty {
		t.Fatalf("unexpected claims: %+v", c)
	}
	if c.Subject != "7" {
		t.Fatalf("unexpected subject %q", c.Subject)
	}
}

func TestVerifyExpired(t *testing.T) {
	secret := []byte("s")
	tok, err := Generate(linUser, secret, -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(tok, secret); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyInvalid(t *testing.T) {
	secret := []byte("s")
	tok, _ := Generate(linUser, secret, time.Minute)
	if _, err := Verify(tok+"x", secret); err != ErrInvalid {
		t.Fatalf("expected invalid, got %v", err)
	}
	if _, err := Verify(tok, []byte("other")); err != ErrInvalid {
		t.Fatalf("expected invalid for wrong secret, got %v", err)
	}
	if _, err := Verify("not-a-token", secret); err != ErrInvalid {
		t.Fatalf("expected invalid for garbage, got %v", err)
	}
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	secret := []byte("s")
	claims := Claims{
		UserID: 7, Name: "Dr. Lin", Role: models.RoleFaculty,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Verify(tok, secret); err != ErrInvalid {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestGenerateValidatesUser(t *testing.T) {
	secret := []byte("s")
	cases := map[string]models.User{
		"user id must be positive": {ID: 0, Name: "x", Role: models.RoleAdmin},
		"user name cannot be empty": {ID: 1, Role: models.RoleAdmin},
		"unknown role":             {ID: 1, Name: "x", Role: "Faculty"},
	}
	for want, u := range cases {
		_, err := Generate(u, secret, time.Minute)
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q error, got %v", want, err)
		}
	}
	if _, err := Generate(linUser, nil, time.Minute); err == nil {
		t.Error("expected error for empty secret")
	}
}
