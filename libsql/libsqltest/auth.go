package libsqltest

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Authenticator checks the credentials of a pipeline request.
type Authenticator interface {
	Authenticate(r *http.Request) error
}

var errMissingToken = errors.New("missing bearer token")

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return "", errMissingToken
	}
	return token, nil
}

// StaticToken accepts exactly one bearer token.
type StaticToken string

func (t StaticToken) Authenticate(r *http.Request) error {
	token, err := bearerToken(r)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(t)) != 1 {
		return errors.New("invalid bearer token")
	}
	return nil
}

// JWTSecret accepts HS256 tokens signed with the secret that have not expired.
type JWTSecret []byte

func (s JWTSecret) Authenticate(r *http.Request) error {
	token, err := bearerToken(r)
	if err != nil {
		return err
	}
	_, err = jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(s), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	return nil
}

// IssueToken signs an HS256 token valid for ttl. A negative ttl yields an
// already expired token.
func IssueToken(secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
