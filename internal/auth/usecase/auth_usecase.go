package usecase

import (
	"errors"
	"fmt"
	"time"

	authdomain "github.com/DipshikaSpotops/spotopsCRMv2-sub001/internal/auth/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthUsecase issues and validates admin bearer tokens
type AuthUsecase interface {
	IssueToken(subject, email string, ttl time.Duration) (string, error)
	ValidateToken(tokenString string) (*authdomain.Admin, error)
}

// authUsecase implements AuthUsecase with HS256 tokens
type authUsecase struct {
	secret []byte
	now    func() time.Time
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(secret string) AuthUsecase {
	return &authUsecase{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (u *authUsecase) IssueToken(subject, email string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if len(u.secret) == 0 {
		return "", errors.New("admin jwt secret is not configured")
	}
	now := u.now()
	claims := jwt.MapClaims{
		"sub":      subject,
		"email":    email,
		"role":     authdomain.RoleAdmin,
		"token_id": uuid.New().String(),
		"exp":      now.Add(ttl).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(u.secret)
}

func (u *authUsecase) ValidateToken(tokenString string) (*authdomain.Admin, error) {
	if len(u.secret) == 0 {
		return nil, authdomain.ErrInvalidToken
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return u.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(u.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", authdomain.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, authdomain.ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", authdomain.ErrInvalidToken)
	}
	if role, _ := claims["role"].(string); role != authdomain.RoleAdmin {
		return nil, authdomain.ErrNotAdmin
	}

	admin := &authdomain.Admin{Subject: subject}
	admin.Email, _ = claims["email"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		admin.ExpiresAt = exp.Time
	}
	return admin, nil
}
