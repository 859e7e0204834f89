package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

const (
	MinSecretLength = 32

	separator = ":"
)

// NewToken returns a fresh random opaque run token.
func NewToken() string {
	return rand.Text()
}

// Signer wraps raw tokens into timestamped, HMAC-signed envelopes of the form
// token:timestamp:signature. The token stays readable; only the signature
// proves the envelope came from this server.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner derives a signing key from secret and salt. Different salts give
// independent signing domains over the same secret.
func NewSigner(secret, salt string) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	key := sha256.Sum256([]byte(salt + "signer" + secret))

	return &Signer{key: key[:], now: time.Now}, nil
}

// Sign returns the envelope for token.
func (s *Signer) Sign(token string) string {
	value := token + separator + strconv.FormatInt(s.now().Unix(), 36)

	return value + separator + s.signature(value)
}

// Unwrap verifies envelope and returns the raw token. A positive maxAge
// rejects envelopes signed longer ago than that.
func (s *Signer) Unwrap(envelope string, maxAge time.Duration) (string, error) {
	sigAt := strings.LastIndex(envelope, separator)
	if sigAt <= 0 {
		return "", ErrMalformedEnvelope
	}

	value, signature := envelope[:sigAt], envelope[sigAt+1:]

	tsAt := strings.LastIndex(value, separator)
	if tsAt <= 0 || signature == "" {
		return "", ErrMalformedEnvelope
	}

	token, stamp := value[:tsAt], value[tsAt+1:]

	signedAt, err := strconv.ParseInt(stamp, 36, 64)
	if err != nil {
		return "", ErrMalformedEnvelope
	}

	if !hmac.Equal([]byte(signature), []byte(s.signature(value))) {
		return "", ErrInvalidSignature
	}

	if maxAge > 0 && s.now().Sub(time.Unix(signedAt, 0)) > maxAge {
		return "", ErrSignatureExpired
	}

	return token, nil
}

func (s *Signer) signature(value string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(value))

	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
