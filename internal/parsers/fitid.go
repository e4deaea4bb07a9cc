package parsers

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"nexledger-reconciler/internal/normalizer"
)

// GenerateFITID derives a stable identifier for rows whose source has none.
// The same date, row index and description always give the same id.
func GenerateFITID(date string, index int, description string) string {
	seed := fmt.Sprintf("%s%04d%s", date, index, normalizer.Truncate(description, 50))
	sum := md5.Sum([]byte(seed))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
