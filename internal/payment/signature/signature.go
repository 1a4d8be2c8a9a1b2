package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign canonicalizes params into a signing string and returns the uppercase
// hex HMAC-SHA256 over it. Canonical form: keys sorted lexicographically,
// joined as key=value pairs with '&', with '&key={secret}' appended. This is
// the scheme Telebirr requires for self-signed outbound requests.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(params[key])
	}
	b.WriteString("&key=")
	b.WriteString(secret)

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// Verify computes HMAC-SHA256 over the exact raw payload bytes and compares
// it with the received hex signature. The comparison is constant time and
// case-insensitive; hex casing differs between providers.
func Verify(payload []byte, received, secret string) bool {
	received = strings.ToLower(strings.TrimSpace(received))
	if received == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(received), []byte(expected))
}
