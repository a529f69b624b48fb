package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	AccountID           uuid.UUID
	Email               string
	Name                string
	PlanName            string
	TokenCount          int
	IsMissingOnboarding bool
	JTI                 string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	AccountID           uuid.UUID `json:"id"`
	Email               string    `json:"email"`
	Name                string    `json:"name"`
	PlanName            string    `json:"plan,omitempty"`
	TokenCount          int       `json:"tokenCount"`
	IsMissingOnboarding bool      `json:"isMissingOnboarding"`
	jwt.RegisteredClaims
}
