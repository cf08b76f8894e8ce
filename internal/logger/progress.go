package logger

import (
	"fmt"
	"strings"
)

// progressWidth is the bar width used by LogProgress.
const progressWidth = 10

// renderProgress draws a bar such as "[====      ] 4/10 (40%)". The
// percentage is clamped to 0-100 and is 0 when total is not positive.
func renderProgress(done, total, width int) string {
	if width < 1 {
		width = progressWidth
	}
	pct := 0
	if total > 0 {
		pct = min(max(done*100/total, 0), 100)
	}
	filled := pct * width / 100
	return fmt.Sprintf("[%s%s] %d/%d (%d%%)",
		strings.Repeat("=", filled), strings.Repeat(" ", width-filled), done, total, pct)
}
