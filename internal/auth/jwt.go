package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/catherinevee/reghook/internal/utils/errors"
)

const defaultIssuer = "reghook"

// Claims carried by an admin API access token.
type Claims struct {
	Subject string `json:"sub"`
	Exp     int64  `json:"exp"`
	Iat     int64  `json:"iat"`
	Iss     string `json:"iss"`
}

// GetExpirationTime returns the expiration time claim
func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt returns the issued at claim
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore returns the not before claim
func (c Claims) GetNotBefore() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetIssuer returns the issuer claim
func (c Claims) GetIssuer() (string, error) {
	return c.Iss, nil
}

// GetSubject returns the subject claim
func (c Claims) GetSubject() (string, error) {
	return c.Subject, nil
}

// GetAudience returns the audience claim
func (c Claims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

// Service issues and validates HS256 bearer tokens for the admin API.
type Service struct {
	secretKey []byte
	issuer    string
	tokenTTL  time.Duration
}

// NewService creates a token service around a shared secret.
func NewService(secret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Service{
		secretKey: []byte(secret),
		issuer:    defaultIssuer,
		tokenTTL:  tokenTTL,
	}
}

// GenerateToken mints a signed access token for the subject.
func (s *Service) GenerateToken(subject string) (string, error) {
	now := time.Now()
	claims := Claims{
		Subject: subject,
		Exp:     now.Add(s.tokenTTL).Unix(),
		Iat:     now.Unix(),
		Iss:     s.issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to sign token")
	}
	return signed, nil
}

// ValidateToken checks signature, expiry and issuer and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf(errors.ErrorTypeUnauthorized, "unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUnauthorized, "token validation failed")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New(errors.ErrorTypeUnauthorized, "invalid token")
	}
	if claims.Iss != s.issuer {
		return nil, errors.New(errors.ErrorTypeUnauthorized, "invalid token issuer")
	}

	return claims, nil
}
