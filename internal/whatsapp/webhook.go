package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

// SignatureHeader carries the HMAC of the raw webhook body.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// Sign returns the header value Meta sends for body.
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the HMAC-SHA256 of body keyed by appSecret.
func VerifySignature(appSecret string, body []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return fmt.Errorf("%w: missing %s", errdefs.ErrUnauthenticated, strings.ToLower(SignatureHeader))
	}
	if appSecret == "" {
		return fmt.Errorf("%w: app secret is not configured", errdefs.ErrUnauthenticated)
	}
	if !hmac.Equal([]byte(header), []byte(Sign(appSecret, body))) {
		return fmt.Errorf("%w: invalid signature", errdefs.ErrUnauthenticated)
	}
	return nil
}

// VerifyChallenge answers the subscription handshake. The challenge is echoed only
// for mode "subscribe" with the configured verify token.
func VerifyChallenge(mode, token, challenge, verifyToken string) (string, error) {
	if mode != "subscribe" || verifyToken == "" || !hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", fmt.Errorf("%w: webhook verification failed", errdefs.ErrPermissionDenied)
	}
	return challenge, nil
}
