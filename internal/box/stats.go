package box

import (
	"fmt"
	"math"
)

// Stats summarises a collection.
type Stats struct {
	Total           int
	Full            int
	Available       int
	TotalCapacity   int
	UsedCapacity    int
	UtilizationRate float64
}

// Summarize computes Stats. UtilizationRate is a percentage.
func Summarize(boxes []Box) Stats {
	var s Stats
	for _, b := range boxes {
		s.Total++
		if b.IsFull {
			s.Full++
		}
		s.TotalCapacity += b.Capacity
		s.UsedCapacity += b.CurrentAmount
	}
	s.Available = s.Total - s.Full
	if s.TotalCapacity > 0 {
		s.UtilizationRate = float64(s.UsedCapacity) / float64(s.TotalCapacity) * 100
	}
	return s
}

// Filter returns the boxes matching status, preserving order.
func Filter(boxes []Box, status Status) []Box {
	out := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		switch status {
		case StatusFull:
			if !b.IsFull {
				continue
			}
		case StatusAvailable:
			if b.IsFull {
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

// FormatCapacity renders "current/total (pct%)".
func FormatCapacity(current, total int) string {
	return fmt.Sprintf("%d/%d (%d%%)", current, total, percent(current, total))
}

// FormatCapacityPercentage renders "pct%".
func FormatCapacityPercentage(current, total int) string {
	return fmt.Sprintf("%d%%", percent(current, total))
}

// FormatPercentage renders value with the given number of decimals.
func FormatPercentage(value float64, decimals int) string {
	return fmt.Sprintf("%.*f%%", decimals, value)
}

// FormatCoordinates renders lat, lng with six decimals.
func FormatCoordinates(lat, lng float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}

// FormatStatus renders the fullness label.
func FormatStatus(isFull bool) string {
	if isFull {
		return "Full"
	}
	return "Available"
}

func percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(current) / float64(total) * 100))
}
