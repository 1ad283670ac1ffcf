package progress

import (
	"strconv"
	"strings"
	"time"
)

const (
	day = 24 * time.Hour

	// maxUnits is how many non-zero units FormatDuration shows.
	maxUnits = 2
)

var durationUnits = []struct {
	size   time.Duration
	symbol string
}{
	{day, "d"},
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
}

// FormatDuration renders d with the two largest non-zero units out of days,
// hours, minutes and seconds, e.g. "3d 4h", "1h 5s", "42s". Zero-valued units
// are skipped wherever they occur. The smallest unit shown is truncated, not
// rounded, so 2m59.6s renders as "2m 59s". Durations under one second render
// as "0s".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}

	parts := make([]string, 0, maxUnits)
	rest := d

	for _, unit := range durationUnits {
		count := rest / unit.size
		rest -= count * unit.size

		if count == 0 {
			continue
		}

		parts = append(parts, strconv.FormatInt(int64(count), 10)+unit.symbol)
		if len(parts) == maxUnits {
			break
		}
	}

	return strings.Join(parts, " ")
}
