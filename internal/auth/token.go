package auth

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
)

const DefaultTokenExp = time.Hour * 24

// IssueToken signs a session token for p that the Resolver accepts.
func IssueToken(signingKey []byte, p Principal, exp time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":       p.UserId,
		"companyId": p.CompanyId,
		expClaim:    time.Now().Add(exp).Unix(),
	}
	if p.Role != "" {
		claims[roleClaim] = p.Role
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
}

func NewTokenCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     TokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}
