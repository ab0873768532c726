package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"openprotect-lab/internal/domain/models"
)

// Sanitized payload keys
const (
	KeyUserHash         = "user_hash"
	KeySignatureHash    = "signature_hash"
	KeyPasswordStrength = "password_strength"

	weakPasswordSentinel = "weak"
)

// SanitizerConfig lists the raw_data keys that carry sensitive values
type SanitizerConfig struct {
	UsernameKeys  []string
	SignatureKeys []string
}

// DefaultSanitizerConfig returns the default sensitive key sets
func DefaultSanitizerConfig() SanitizerConfig {
	return SanitizerConfig{
		UsernameKeys:  []string{"username"},
		SignatureKeys: []string{"signature"},
	}
}

// Sanitizer strips or hashes sensitive raw_data fields before aggregation
type Sanitizer struct {
	usernameKeys  map[string]struct{}
	signatureKeys map[string]struct{}
}

// NewSanitizer creates a sanitizer for the given key sets
func NewSanitizer(cfg SanitizerConfig) *Sanitizer {
	if len(cfg.UsernameKeys) == 0 && len(cfg.SignatureKeys) == 0 {
		cfg = DefaultSanitizerConfig()
	}
	return &Sanitizer{
		usernameKeys:  toKeySet(cfg.UsernameKeys),
		signatureKeys: toKeySet(cfg.SignatureKeys),
	}
}

func toKeySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Sanitize returns the sanitized payload for an alert. Usernames and
// signatures are replaced by their SHA-256 hex digest, password strength is
// kept only when it is weak, device and context are dropped. Other fields,
// including IP addresses, pass through unchanged.
func (s *Sanitizer) Sanitize(alert *models.RawAlert) map[string]any {
	out := make(map[string]any)
	if alert == nil {
		return out
	}

	for k, v := range alert.RawData.Fields {
		switch {
		case k == "device" || k == "context":
			continue
		case s.isUsernameKey(k):
			out[KeyUserHash] = HashValue(v)
		case s.isSignatureKey(k):
			out[KeySignatureHash] = HashValue(v)
		case k == KeyPasswordStrength:
			if str, ok := v.(string); ok && strings.EqualFold(strings.TrimSpace(str), weakPasswordSentinel) {
				out[KeyPasswordStrength] = weakPasswordSentinel
			}
		default:
			out[k] = v
		}
	}
	return out
}

func (s *Sanitizer) isUsernameKey(k string) bool {
	_, ok := s.usernameKeys[k]
	return ok
}

func (s *Sanitizer) isSignatureKey(k string) bool {
	_, ok := s.signatureKeys[k]
	return ok
}

// HashValue returns the lowercase hex SHA-256 digest of v's string form
func HashValue(v any) string {
	var str string
	switch t := v.(type) {
	case string:
		str = t
	case nil:
	default:
		str = fmt.Sprint(t)
	}
	sum := sha256.Sum256([]byte(str))
	return hex.EncodeToString(sum[:])
}
