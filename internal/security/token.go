package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gotogrow/portal/internal/models"
)

// SessionClaims is the payload of the session token: identity plus the two
// auxiliary claims the gatekeeping layer branches on.
type SessionClaims struct {
	UserID       string          `json:"uid"`
	Role         models.UserRole `json:"role"`
	HasCharacter bool            `json:"hch"`
	jwt.RegisteredClaims
}

// TokenState is the closed outcome of verification. A token is exactly one
// of valid, expired, or invalid; there is no partial validity.
type TokenState int

const (
	TokenInvalid TokenState = iota
	TokenExpired
	TokenValid
)

// VerifyResult tags the verification outcome. Claims is non-nil only when
// State is TokenValid.
type VerifyResult struct {
	State  TokenState
	Claims *SessionClaims
}

func (r VerifyResult) Valid() bool { return r.State == TokenValid }

func IssueSessionToken(secret string, user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID:       user.ID,
		Role:         user.Role,
		HasCharacter: user.HasCharacter,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// VerifySessionToken never returns an error: every failure collapses into a
// tagged result so the gatekeeping layer can branch without exception paths.
func VerifySessionToken(tokenStr string, secret string) VerifyResult {
	if tokenStr == "" {
		return VerifyResult{State: TokenInvalid}
	}

	var claims SessionClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		// A bad signature or malformed token is invalid even if its expiry
		// also lies in the past; only a well-formed, correctly signed token
		// reports as expired.
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenMalformed) {
			return VerifyResult{State: TokenInvalid}
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifyResult{State: TokenExpired}
		}
		return VerifyResult{State: TokenInvalid}
	}
	if !token.Valid {
		return VerifyResult{State: TokenInvalid}
	}
	return VerifyResult{State: TokenValid, Claims: &claims}
}
