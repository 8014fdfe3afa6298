package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates the roles this service recognises.
type UserRole string

const (
	RoleStudent    UserRole = "STUDENT"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleAdmin      UserRole = "ADMIN"
)

// JWTClaims is the verified identity attached to authenticated requests.
// Tokens are issued elsewhere; this service only validates them.
type JWTClaims struct {
	UserID string   `json:"uid"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
