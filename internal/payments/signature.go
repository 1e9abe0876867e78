package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrPaymentVerificationFailed indicates the client supplied signature does not match.
var ErrPaymentVerificationFailed = errors.New("payments: verification failed")

// Verifier checks gateway payment signatures. The signed message is "orderRef|paymentRef" and the
// signature is the hex encoded HMAC-SHA256 under the gateway secret.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier for the given shared secret.
func NewVerifier(secret string) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: signing secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Sign returns the expected signature for the pair.
func (v *Verifier) Sign(orderRef, paymentRef string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares the signature in constant time.
func (v *Verifier) Verify(orderRef, paymentRef, signature string) error {
	if v == nil || len(v.secret) == 0 {
		return errors.New("payments: verifier is not configured")
	}
	orderRef = strings.TrimSpace(orderRef)
	paymentRef = strings.TrimSpace(paymentRef)
	if orderRef == "" || paymentRef == "" {
		return ErrPaymentVerificationFailed
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrPaymentVerificationFailed
	}
	expected, _ := hex.DecodeString(v.Sign(orderRef, paymentRef))
	if !hmac.Equal(provided, expected) {
		return ErrPaymentVerificationFailed
	}
	return nil
}
