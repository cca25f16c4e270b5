package services

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/logging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/security"
)

// ErrInvalidCredentials is returned on any failed operator login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService handles operator authentication for the admin surface.
type AuthService struct {
	passwordHash string
	jwtSecret    string
	logger       *logging.ChanneledLogger
}

// NewAuthService creates a new auth service. passwordHash is a bcrypt
// hash; an empty hash disables operator login entirely.
func NewAuthService(passwordHash, jwtSecret string, logger *logging.ChanneledLogger) *AuthService {
	return &AuthService{
		passwordHash: passwordHash,
		jwtSecret:    jwtSecret,
		logger:       logger,
	}
}

// Login checks the operator password and issues a signed token.
func (a *AuthService) Login(operator, password string) (string, error) {
	if a.passwordHash == "" || operator == "" {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		a.logger.Auth().Warn("Operator login rejected", "operator", operator)
		return "", ErrInvalidCredentials
	}

	token, err := security.GenerateOperatorToken(operator, a.jwtSecret)
	if err != nil {
		return "", err
	}

	a.logger.Auth().Info("Operator logged in", "operator", operator)
	return token, nil
}

// Validate checks a bearer token and returns the operator name.
func (a *AuthService) Validate(token string) (string, error) {
	claims, err := security.ValidateJWT(token, a.jwtSecret)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	operator, ok := security.OperatorFromClaims(claims)
	if !ok || operator == "" {
		return "", ErrInvalidCredentials
	}
	return operator, nil
}
