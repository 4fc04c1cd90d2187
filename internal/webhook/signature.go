package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Header names of the provider's signing scheme. All three are
// required on every delivery.
const (
	HeaderID        = "webhook-id"
	HeaderTimestamp = "webhook-timestamp"
	HeaderSignature = "webhook-signature"
)

// secretPrefix marks a base64-encoded signing secret as issued by the
// provider dashboard.
const secretPrefix = "whsec_"

var (
	ErrMissingHeaders   = errors.New("missing signature headers")
	ErrInvalidTimestamp = errors.New("webhook timestamp outside tolerance")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
)

// Verifier checks the provider's HMAC-SHA256 webhook signatures.
type Verifier struct {
	key       []byte
	tolerance time.Duration

	// now is replaceable for tests.
	now func() time.Time
}

// NewVerifier creates a verifier from the shared signing secret.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is empty")
	}

	key := []byte(secret)
	if trimmed, ok := strings.CutPrefix(secret, secretPrefix); ok {
		decoded, err := base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("failed to decode webhook secret: %w", err)
		}
		key = decoded
	}

	return &Verifier{
		key:       key,
		tolerance: tolerance,
		now:       time.Now,
	}, nil
}

// Verify checks the three signature headers against the raw payload.
// The signed content is "<id>.<timestamp>.<payload>"; the signature
// header may carry several space-separated "v1,<base64>" candidates
// (key rotation), any one of which may match.
func (v *Verifier) Verify(payload []byte, headers http.Header) error {
	id := headers.Get(HeaderID)
	timestamp := headers.Get(HeaderTimestamp)
	signatures := headers.Get(HeaderSignature)

	if id == "" || timestamp == "" || signatures == "" {
		return ErrMissingHeaders
	}

	if err := v.checkTimestamp(timestamp); err != nil {
		return err
	}

	signedContent := fmt.Sprintf("%s.%s.%s", id, timestamp, payload)
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(signedContent))
	expected := mac.Sum(nil)

	for _, candidate := range strings.Fields(signatures) {
		parts := strings.SplitN(candidate, ",", 2)
		if len(parts) != 2 || parts[0] != "v1" {
			continue
		}
		provided, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			continue
		}
		if hmac.Equal(expected, provided) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// checkTimestamp rejects deliveries outside the tolerance window to
// limit replays.
func (v *Verifier) checkTimestamp(value string) error {
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
	}

	delta := v.now().Sub(time.Unix(seconds, 0))
	if delta > v.tolerance || delta < -v.tolerance {
		return ErrInvalidTimestamp
	}
	return nil
}

// Sign computes the signature header value for a payload. Exposed for
// tests and local tooling.
func (v *Verifier) Sign(id, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%s.%s", id, timestamp, payload)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
