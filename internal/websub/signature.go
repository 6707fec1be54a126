package websub

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
)

var (
	ErrSecretNotConfigured  = errors.New("webhook secret not configured")
	ErrNotSigned            = errors.New("notification has no signature header")
	ErrInvalidHeader        = errors.New("notification has invalid signature header")
	ErrUnsupportedAlgorithm = errors.New("notification signed with unsupported algorithm")
	ErrNoValidSignature     = errors.New("notification had no valid signature")
)

// Verifier authenticates hub notifications signed with HMAC-SHA1, the scheme
// the hub applies when a subscription carries a hub.secret.
type Verifier struct {
	secret string
	logger *slog.Logger
}

// NewVerifier creates a verifier keyed with the shared webhook secret.
func NewVerifier(secret string, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{secret: secret, logger: logger}
}

// Verify checks an X-Hub-Signature header of the form "sha1=<hexdigest>"
// against the HMAC-SHA1 of body keyed with the shared secret. It fails closed:
// any missing or malformed input yields a non-nil error. The secret and the
// computed digest are never logged.
func (v *Verifier) Verify(body []byte, signatureHeader string) error {
	if v.secret == "" {
		v.logger.Warn("HMAC verification requested but webhook secret not configured")
		return ErrSecretNotConfigured
	}
	if signatureHeader == "" {
		return ErrNotSigned
	}

	algorithm, provided, found := strings.Cut(signatureHeader, "=")
	if !found {
		return ErrInvalidHeader
	}
	if algorithm != "sha1" {
		v.logger.Error("unsupported signature algorithm", slog.String("algorithm", algorithm))
		return ErrUnsupportedAlgorithm
	}
	providedSig, err := hex.DecodeString(provided)
	if err != nil {
		return ErrInvalidHeader
	}

	mac := hmac.New(sha1.New, []byte(v.secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), providedSig) {
		v.logger.Error("HMAC signature validation failed")
		return ErrNoValidSignature
	}

	v.logger.Info("HMAC signature validated successfully")
	return nil
}

// Valid reports whether Verify accepts the body/header pair.
func (v *Verifier) Valid(body []byte, signatureHeader string) bool {
	return v.Verify(body, signatureHeader) == nil
}
