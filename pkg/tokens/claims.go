package tokens

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is shared by access and refresh tokens; the signing secret tells them apart.
type Claims struct {
	UserID uint   `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
