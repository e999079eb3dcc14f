package expense

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// DownloadURLTTL is how long a signed receipt download URL stays valid.
const DownloadURLTTL = 15 * time.Minute

// URLSigner issues and verifies time-limited signed paths for receipt
// downloads. Viewers holding a share link never get direct blob access; they
// get a signed /files/ path that expires.
type URLSigner struct {
	key []byte
}

// NewURLSigner creates a new URLSigner with the given secret key
func NewURLSigner(key string) (*URLSigner, error) {
	if key == "" {
		return nil, fmt.Errorf("signing key is required")
	}
	return &URLSigner{key: []byte(key)}, nil
}

func (s *URLSigner) signature(path string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%s\n%d", path, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns a relative signed URL for the given object path, valid until
// expires.
func (s *URLSigner) Sign(path string, expires time.Time) string {
	exp := expires.Unix()
	return fmt.Sprintf("/files/%s?expires=%d&sig=%s", path, exp, s.signature(path, exp))
}

// Verify reports whether sig is a valid signature for path that has not
// expired as of now.
func (s *URLSigner) Verify(path, expiresParam, sig string, now time.Time) bool {
	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		return false
	}
	if now.Unix() > expires {
		return false
	}
	expected := s.signature(path, expires)
	return hmac.Equal([]byte(expected), []byte(sig))
}
