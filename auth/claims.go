package auth

import "github.com/golang-jwt/jwt/v5"

// Claims 服务 Token 载荷
type Claims struct {
	jwt.RegisteredClaims

	Scopes []string `json:"scopes,omitempty"`
}
