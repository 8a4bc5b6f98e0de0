package service

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/examina/examina-backend/internal/config"
)

// ErrInvalidStudentToken is returned for malformed or expired student JWTs.
var ErrInvalidStudentToken = errors.New("invalid student token")

// TokenType distinguishes principals; only students reach this service.
type TokenType string

const TokenTypeStudent TokenType = "student"

// Claims is the JWT payload minted by the identity service. The engine
// shares the signing secret and only validates; it never issues tokens in
// production.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	StudentID int       `json:"student_id"`
}

// AuthService validates student identity tokens. Identity, passwords and
// login flows live in the identity collaborator service.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// ValidateToken parses and validates a student JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStudentToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != TokenTypeStudent {
		return nil, ErrInvalidStudentToken
	}

	return claims, nil
}

// MintStudentToken issues a token the way the identity service does.
// Used by the local seeder and the e2e suite; not exposed over HTTP.
func (s *AuthService) MintStudentToken(studentID int, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(studentID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: TokenTypeStudent,
		StudentID: studentID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
