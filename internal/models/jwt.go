package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the structure of the access token claims issued by the
// account service
type JWTClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}
