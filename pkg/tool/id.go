package tool

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateOrderNo builds a merchant order number: "M" + timestamp + 8 hex chars.
// WeChat Pay requires out_trade_no to be unique per merchant account.
func GenerateOrderNo(now time.Time) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "M" + now.Format("20060102150405") + strings.ToUpper(hex.EncodeToString(buf))
}

// GenerateShareCode builds a referral share code: "R" + 12 alphanumerics.
// Uniqueness is enforced by the users.share_code constraint; callers retry on
// collision.
func GenerateShareCode() string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return "R" + string(buf)
}
