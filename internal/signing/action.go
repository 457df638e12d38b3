package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/timmy/memetag/internal/domain"
)

// actionMACBytes truncates the MAC so tokens fit 64-byte chat button payloads.
const actionMACBytes = 16

// SignAction issues a compact confirmation token for action, valid for ttl.
// The format is "<expiry base36>.<mac base64url>".
func (s *Signer) SignAction(action string, ttl time.Duration) string {
	exp := strconv.FormatInt(s.now().Add(ttl).Unix(), 36)
	return exp + "." + s.actionMAC(action, exp)
}

// VerifyAction checks that token was issued for action and has not expired.
func (s *Signer) VerifyAction(action, token string) error {
	exp, mac, ok := strings.Cut(token, ".")
	if !ok || exp == "" || mac == "" {
		return domain.ErrInvalidConfirmation
	}
	if !hmac.Equal([]byte(mac), []byte(s.actionMAC(action, exp))) {
		return domain.ErrInvalidConfirmation
	}
	unix, err := strconv.ParseInt(exp, 36, 64)
	if err != nil || !s.now().Before(time.Unix(unix, 0)) {
		return domain.ErrInvalidConfirmation
	}
	return nil
}

func (s *Signer) actionMAC(action, exp string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte("action:" + action + ":" + exp))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)[:actionMACBytes])
}
