package utility

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewReceiptNo sinh số biên nhận khi người thu không nhập: RCP-YYYYMMDD-XXXXXXXX
func NewReceiptNo(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("RCP-%s-%s", now.UTC().Format("20060102"), id[:8])
}
