// Package security provides JWT token utilities for operator access
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// OperatorTokenTTL bounds how long an operator login stays valid.
const OperatorTokenTTL = 12 * time.Hour

// ValidateJWT validates a JWT token and returns the claims
func ValidateJWT(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GenerateOperatorToken creates a JWT for an authenticated operator.
func GenerateOperatorToken(operator, jwtSecret string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  operator,
		"role": "operator",
		"iat":  time.Now().UTC().Unix(),
		"exp":  time.Now().UTC().Add(OperatorTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// OperatorFromClaims extracts the operator name from validated claims.
func OperatorFromClaims(claims jwt.MapClaims) (string, bool) {
	if role, ok := claims["role"].(string); !ok || role != "operator" {
		return "", false
	}
	sub, ok := claims["sub"].(string)
	return sub, ok
}
