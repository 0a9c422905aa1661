package usecase

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// AuthUsecase signs and validates operator API tokens
type AuthUsecase interface {
	// IssueToken signs a token for subject valid for ttl
	IssueToken(subject string, ttl time.Duration) (string, error)
	// ValidateToken returns the subject of a valid token
	ValidateToken(tokenString string) (string, error)
}

type authUsecase struct {
	secret []byte
	now    func() time.Time
}

// NewAuthUsecase creates an AuthUsecase with an HMAC secret
func NewAuthUsecase(secret string) AuthUsecase {
	return &authUsecase{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (u *authUsecase) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := u.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(u.secret)
}

func (u *authUsecase) ValidateToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return u.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(u.now))

	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
