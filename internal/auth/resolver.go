package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/chat-relay/internal/database"
)

const (
	RoleAdmin          = "admin"
	RoleManager        = "manager"
	RoleCompanyManager = "company_manager"
	RoleMember         = "member"
)

var (
	userIdClaims    = []string{"sub", "userId", "id", "user_id"}
	companyIdClaims = []string{"companyId", "company_id"}
)

const (
	roleClaim = "role"
	expClaim  = "exp"
)

// Principal is the identity attached to a request or connection.
type Principal struct {
	UserId    int    `json:"user_id"`
	CompanyId int    `json:"company_id"`
	Role      string `json:"role,omitempty"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p Principal) IsManager() bool {
	return p.Role == RoleManager || p.Role == RoleCompanyManager
}

// TokenStore is the subset of the repository the resolver needs.
type TokenStore interface {
	GetPersonalAccessToken(ctx context.Context, id int, tokenHash string) (database.PersonalAccessToken, error)
	GetUserById(ctx context.Context, userId int) (database.User, error)
}

type Resolver struct {
	log        *log.Logger
	signingKey []byte
	store      TokenStore
	now        func() time.Time
}

func NewResolver(logger *log.Logger, signingKey []byte, store TokenStore) *Resolver {
	return &Resolver{
		log:        logger,
		signingKey: signingKey,
		store:      store,
		now:        time.Now,
	}
}

// Resolve verifies raw and returns the principal it identifies. All
// failures collapse to ErrUnauthorized.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Principal, error) {
	cred, err := ParseCredential(raw)
	if err != nil {
		r.log.Printf("resolve credential: %v", err)
		return Principal{}, ErrUnauthorized
	}

	var p Principal
	switch c := cred.(type) {
	case SignedToken:
		p, err = r.resolveSigned(c)
	case OpaqueToken:
		p, err = r.resolveOpaque(ctx, c)
	default:
		err = errMalformed
	}
	if err != nil {
		r.log.Printf("resolve credential: %v", err)
		return Principal{}, ErrUnauthorized
	}

	return p, nil
}

func (r *Resolver) resolveSigned(c SignedToken) (Principal, error) {
	token, err := jwt.Parse(c.Raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.signingKey, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Principal{}, errors.New("invalid token claims")
	}

	// jwt v3 only checks exp when present
	if _, ok := claims[expClaim]; !ok {
		return Principal{}, errors.New("missing exp claim")
	}

	userId, ok := firstIntClaim(claims, userIdClaims)
	if !ok || userId <= 0 {
		return Principal{}, errors.New("invalid user id claim")
	}

	companyId, _ := firstIntClaim(claims, companyIdClaims)
	role, _ := claims[roleClaim].(string)

	return Principal{UserId: userId, CompanyId: companyId, Role: role}, nil
}

func (r *Resolver) resolveOpaque(ctx context.Context, c OpaqueToken) (Principal, error) {
	if r.store == nil {
		return Principal{}, errors.New("no token store configured")
	}

	sum := sha256.Sum256([]byte(c.Secret))
	pat, err := r.store.GetPersonalAccessToken(ctx, c.Id, hex.EncodeToString(sum[:]))
	if err != nil {
		return Principal{}, fmt.Errorf("get access token: %w", err)
	}

	if pat.ExpiresAt != nil && !r.now().Before(*pat.ExpiresAt) {
		return Principal{}, errors.New("access token expired")
	}

	user, err := r.store.GetUserById(ctx, pat.TokenableId)
	if err != nil {
		return Principal{}, fmt.Errorf("get token owner: %w", err)
	}

	return Principal{UserId: user.Id, CompanyId: user.CompanyId, Role: user.Role}, nil
}

func firstIntClaim(claims jwt.MapClaims, names []string) (int, bool) {
	for _, name := range names {
		v, ok := claims[name]
		if !ok || v == nil {
			continue
		}
		if n, ok := toInt(v); ok {
			return n, true
		}
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), n == float64(int(n))
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
