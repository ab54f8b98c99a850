// Package auth turns inbound credentials into a Principal.
//
// Two credential formats are accepted: a signed session token (JWT) and an
// opaque database token of the form "<id>|<secret>". ParseCredential is the
// only place that tells them apart.
package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// ErrUnauthorized is the only error callers of Resolve ever see.
var ErrUnauthorized = errors.New("unauthorized")

var errMalformed = errors.New("malformed credential")

const (
	TokenCookieKey = "token"
	tokenQueryKey  = "token"

	opaqueSeparator = "|"
)

// Credential is either a SignedToken or an OpaqueToken.
type Credential interface {
	credential()
}

type SignedToken struct {
	Raw string
}

type OpaqueToken struct {
	Id     int
	Secret string
}

func (SignedToken) credential() {}
func (OpaqueToken) credential() {}

func ParseCredential(raw string) (Credential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errMalformed
	}

	idPart, secret, found := strings.Cut(raw, opaqueSeparator)
	if !found {
		return SignedToken{Raw: raw}, nil
	}

	if idPart == "" || secret == "" {
		return nil, errMalformed
	}

	id, err := strconv.Atoi(idPart)
	if err != nil || id <= 0 {
		return nil, errMalformed
	}

	return OpaqueToken{Id: id, Secret: secret}, nil
}

// ExtractCredential reads the raw credential from the request, checking the
// Authorization header, then the token cookie, then the token query
// parameter.
func ExtractCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}

	if c, err := r.Cookie(TokenCookieKey); err == nil && c.Value != "" {
		return c.Value
	}

	return r.URL.Query().Get(tokenQueryKey)
}
