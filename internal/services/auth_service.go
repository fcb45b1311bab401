package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuthService struct {
	secretKey []byte
	expiry    time.Duration
	logger    zerolog.Logger
}

// Claims identify the user by id only; role and profile are loaded per request.
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

func NewAuthService(secret string, expiry time.Duration, logger zerolog.Logger) *AuthService {
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	return &AuthService{
		secretKey: []byte(secret),
		expiry:    expiry,
		logger:    logger,
	}
}

func (s *AuthService) GenerateToken(userID primitive.ObjectID) (string, error) {
	now := time.Now()
	claims := &Claims{
		ID: userID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error generating token")
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses tokenString and returns the user id it names.
// Errors are ErrTokenExpired, ErrTokenNotActive or ErrInvalidToken.
func (s *AuthService) ValidateToken(tokenString string) (primitive.ObjectID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secretKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return primitive.NilObjectID, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return primitive.NilObjectID, ErrTokenNotActive
	case err != nil:
		return primitive.NilObjectID, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case !token.Valid:
		return primitive.NilObjectID, ErrInvalidToken
	}

	userID, err := primitive.ObjectIDFromHex(claims.ID)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidToken
	}
	return userID, nil
}
