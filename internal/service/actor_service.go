package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/admissions-sync-api/internal/models"
	appErrors "github.com/noah-isme/admissions-sync-api/pkg/errors"
)

// ActorService reads bearer tokens issued elsewhere to attribute actions.
// It never issues tokens.
type ActorService struct {
	secret []byte
}

// NewActorService builds the service. An empty secret disables validation.
func NewActorService(secret string) *ActorService {
	return &ActorService{secret: []byte(secret)}
}

// Enabled reports whether tokens can be validated.
func (s *ActorService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// ValidateToken parses and verifies an HS256 token.
func (s *ActorService) ValidateToken(tokenString string) (*models.ActorClaims, error) {
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token validation disabled")
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized, "invalid token")
	}

	claims, ok := token.Claims.(*models.ActorClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
