package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fleet-system/internal/entities"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
)

// ActorClaims are the JWT claims carrying the acting identity. Role
// assignment happens in the identity provider; the engine trusts the
// claims as given.
type ActorClaims struct {
	ActorID   string `json:"actorId"`
	ActorName string `json:"actorName"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

type JWTService interface {
	GenerateToken(actor entities.Actor) (string, error)
	ValidateToken(tokenString string) (*ActorClaims, error)
}

type jwtService struct {
	secretKey []byte
	tokenTTL  time.Duration
}

func NewJWTService(secretKey string, tokenTTL time.Duration) JWTService {
	return &jwtService{
		secretKey: []byte(secretKey),
		tokenTTL:  tokenTTL,
	}
}

func (s *jwtService) GenerateToken(actor entities.Actor) (string, error) {
	now := time.Now()
	claims := ActorClaims{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Role:      string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			Subject:   actor.ID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

func (s *jwtService) ValidateToken(tokenString string) (*ActorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrInvalidToken
		}
		return s.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}

// ToActor converts validated claims to the domain actor.
func (c *ActorClaims) ToActor() entities.Actor {
	return entities.Actor{
		ID:   c.ActorID,
		Name: c.ActorName,
		Role: constants.Role(c.Role),
	}
}
