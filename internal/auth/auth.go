package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// KeyPrefix starts every API key.
const KeyPrefix = "cs_"

// lookupLen is the number of key characters after KeyPrefix stored in clear
// for lookup.
const lookupLen = 8

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller of a request.
type Principal struct {
	KeyID string
	Name  string
	Role  string
}

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleOperator || role == RoleViewer
}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// ActorFromContext names the caller for audit entries.
func ActorFromContext(ctx context.Context) string {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return "anonymous"
	}
	return p.Name
}

func IsAdmin(ctx context.Context) bool {
	p, _ := PrincipalFromContext(ctx)
	return p.Role == RoleAdmin
}

// CanWrite reports whether the caller may create or change templates and
// certificates.
func CanWrite(ctx context.Context) bool {
	p, _ := PrincipalFromContext(ctx)
	return p.Role == RoleAdmin || p.Role == RoleOperator
}

func GenerateToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateKey returns a new API key of the form cs_<64 hex> and its lookup
// prefix.
func GenerateKey() (key, prefix string, err error) {
	raw, err := GenerateToken(32)
	if err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	return KeyPrefix + raw, raw[:lookupLen], nil
}

// LookupPrefix extracts the stored prefix from a presented key.
func LookupPrefix(key string) (string, bool) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(key, KeyPrefix)
	if len(rest) < lookupLen {
		return "", false
	}
	return rest[:lookupLen], true
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
