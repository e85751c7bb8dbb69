package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrTokenExpired = errors.New("token expired")

type Claims struct {
	TokenType   string `json:"token_type"`
	SessionUUID string `json:"sid"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	issuer        string
	audience      string
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

func NewJWTManager(issuer, audience, accessSecret, refreshSecret string) *JWTManager {
	return &JWTManager{
		issuer:        issuer,
		audience:      audience,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		now:           time.Now,
	}
}

// WithClock makes signing and validation follow the given clock instead of wall time.
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *JWTManager) SignAccessToken(userUUID, sessionUUID string, expiresAt time.Time) (string, error) {
	return m.sign("access", userUUID, sessionUUID, expiresAt, m.accessSecret)
}

func (m *JWTManager) SignRefreshToken(userUUID, sessionUUID string, expiresAt time.Time) (string, error) {
	return m.sign("refresh", userUUID, sessionUUID, expiresAt, m.refreshSecret)
}

func (m *JWTManager) sign(tokenType, userUUID, sessionUUID string, expiresAt time.Time, secret []byte) (string, error) {
	claims := Claims{
		TokenType:   tokenType,
		SessionUUID: sessionUUID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userUUID,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAccessToken returns ErrTokenExpired together with the claims when the
// signature checks out but the token is past its expiry.
func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, m.accessSecret, "access")
}

func (m *JWTManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.parse(raw, m.refreshSecret, "refresh")
}

func (m *JWTManager) parse(raw string, secret []byte, tokenType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, keyFunc(secret),
		jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience), jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return m.parseExpired(raw, secret, tokenType)
		}
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if err := checkClaims(claims, tokenType); err != nil {
		return nil, err
	}
	return claims, nil
}

// parseExpired re-checks the signature without time validation so callers can
// still tell which session an expired token belonged to.
func (m *JWTManager) parseExpired(raw string, secret []byte, tokenType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, keyFunc(secret), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if !tok.Valid || claims.Issuer != m.issuer || !containsAudience(claims.Audience, m.audience) {
		return nil, errors.New("invalid token")
	}
	if err := checkClaims(claims, tokenType); err != nil {
		return nil, err
	}
	return claims, ErrTokenExpired
}

func keyFunc(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	}
}

func checkClaims(claims *Claims, tokenType string) error {
	if claims.TokenType != tokenType {
		return fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if claims.SessionUUID == "" {
		return errors.New("missing session claim")
	}
	return nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
