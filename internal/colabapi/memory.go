package colabapi

import (
	"fmt"
	"math"
)

// FormatMemory renders a size given in MB as a human-readable string: whole
// megabytes below one gigabyte, one decimal place in gigabytes at or above
// it (spec.md §8 boundary behaviors).
func FormatMemory(mb int64) string {
	if mb < 1024 {
		return fmt.Sprintf("%d MB", mb)
	}
	return fmt.Sprintf("%.1f GB", float64(mb)/1024)
}

// CalculateMemoryUsage returns the percentage of totalMB consumed by
// usedMB, rounded to the nearest integer. A zero totalMB means the
// backend never reported a capacity; reporting 0 rather than dividing by
// zero matches the getStats().successRate == 0-on-empty convention
// elsewhere in spec.md §8.
func CalculateMemoryUsage(usedMB, totalMB int64) int {
	if totalMB == 0 {
		return 0
	}
	return int(math.Round(100 * float64(usedMB) / float64(totalMB)))
}
