package transfer

import "github.com/golang-jwt/jwt/v5"

type OwnerClaims struct {
	OwnerID string `json:"owner_id"`
	jwt.RegisteredClaims
}
