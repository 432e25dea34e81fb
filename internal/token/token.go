package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickwarner/flagdesk/internal/models"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// Issuer is written to and required on every session token.
const Issuer = "flagdesk"

// Claims identify the caller of the REST API. Faculty identity for
// assigned-to-me and the resolver name both come from here.
type Claims struct {
	UserID int    `json:"userId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// User returns the claims as a user record.
func (c *Claims) User() models.User {
	return models.User{ID: c.UserID, Name: c.Name, Role: c.Role}
}

func validateUser(u models.User) error {
	if u.ID <= 0 {
		return fmt.Errorf("user id must be positive, got %d", u.ID)
	}
	if u.Name == "" {
		return errors.New("user name cannot be empty")
	}
	switch u.Role {
	case models.RoleStudent, models.RoleFaculty, models.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", u.Role)
	}
	return nil
}

// Generate creates a signed HS256 session token for u valid for ttl.
func Generate(u models.User, secret []byte, ttl time.Duration) (string, error) {
	if err := validateUser(u); err != nil {
		return "", fmt.Errorf("claims validation failed: %w", err)
	}
	if len(secret) == 0 {
		return "", errors.New("token secret is empty")
	}
	now := time.Now()
	claims := Claims{
		UserID: u.ID,
		Name:   u.Name,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    Issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks the token signature, issuer and expiry and returns its claims.
func Verify(tok string, secret []byte) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tok, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if err := validateUser(claims.User()); err != nil {
		return nil, ErrInvalid
	}
	return claims, nil
}
