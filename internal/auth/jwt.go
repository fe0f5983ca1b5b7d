package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lalith-99/echoforum/internal/models"
)

// Claims is the payload inside every JWT token.
//
// Tokens are issued by the platform that embeds the forum; this service only
// verifies them. The tenant and role come from the token and are never read
// from request bodies, so a caller cannot post into another tenant or grant
// itself the expert role.
//
// Why carry Name and Avatar in the token?
//   - Every thread and reply stores a denormalized copy of its author
//     (models.Author). The forum has no user table to look names up in.
//   - Putting the display fields in the token means a write needs no extra
//     round trip, and the stored author is what the user saw when posting.
//   - A renamed user shows the new name on new messages only. That is the
//     accepted trade-off of denormalizing.
type Claims struct {
	UserID   string      `json:"user_id"`
	TenantID string      `json:"tenant_id"`
	Role     models.Role `json:"role"`
	Name     string      `json:"name,omitempty"`
	Avatar   string      `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// Author returns the identity a message written with these claims carries.
func (c *Claims) Author() models.Author {
	return models.Author{
		UserID: c.UserID,
		Role:   c.Role,
		Name:   c.Name,
		Avatar: c.Avatar,
	}
}

// GenerateToken creates an HS256-signed JWT for claims, expiring after ttl.
// Registered claims already present on claims are overwritten.
//
// The embedding platform normally mints tokens; this is used by tests and by
// operators who need a token for a tenant by hand.
//
// Why HS256?
//   - One shared secret between the platform and the forum, no key pair.
//   - If more services ever need to verify but not issue tokens, switch to
//     RS256 so only the issuer holds the private key.
func GenerateToken(claims Claims, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    "echoforum",
		Subject:   claims.UserID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseToken validates a JWT string and extracts the claims.
//
// It verifies the HMAC signature, the expiry, and that the token names a
// user, a tenant and a known role.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			// Reject "none" and asymmetric algorithms before checking the signature.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, errors.New("token missing user or tenant")
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("token has unknown role %q", claims.Role)
	}

	return claims, nil
}
