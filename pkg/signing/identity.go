package signing

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "orchestrator"

// IdentityClaims identify a single run to inbound pipeline requests.
type IdentityClaims struct {
	RunID        string `json:"run_id"`
	DefinitionID string `json:"definition_id"`
	ClusterID    string `json:"cluster_id"`
	jwt.RegisteredClaims
}

// IdentityIssuer issues HS256 pipeline identity tokens.
type IdentityIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIdentityIssuer(secret string, ttl time.Duration) (*IdentityIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	return &IdentityIssuer{key: []byte("identity" + secret), ttl: ttl, now: time.Now}, nil
}

func (i *IdentityIssuer) Issue(runID, definitionID, clusterID string) (string, error) {
	now := i.now()

	claims := IdentityClaims{
		RunID:        runID,
		DefinitionID: definitionID,
		ClusterID:    clusterID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  runID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign identity token: %w", err)
	}

	return signed, nil
}

// Verify checks token and returns its claims.
func (i *IdentityIssuer) Verify(token string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)

	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrSignatureExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrMalformedEnvelope
	default:
		return nil, ErrInvalidSignature
	}
}
