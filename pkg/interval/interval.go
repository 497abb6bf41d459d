// Package interval parses free-text maintenance interval descriptions
// ("Annually", "Every 3 months", "90 days") into a whole number of months.
package interval

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	weeksPerMonth = 4.33
	daysPerMonth  = 30.44
)

var numberPattern = regexp.MustCompile(`\d+`)

// ParseMonths converts an interval description to months. Empty input yields 0,
// which callers must treat as "no recurrence"; text that carries no number at
// all degrades to 1 so a recurrence never stalls on a typo.
func ParseMonths(text string) int {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0
	}

	switch {
	case strings.Contains(s, "semi-annual"),
		strings.Contains(s, "semiannual"),
		strings.Contains(s, "biannual"),
		strings.Contains(s, "twice yearly"):
		return 6
	case strings.Contains(s, "annual"), strings.Contains(s, "yearly"):
		return 12
	case strings.Contains(s, "quarter"):
		return 3
	case strings.Contains(s, "bimonth"), strings.Contains(s, "bi-month"):
		return 2
	case strings.Contains(s, "month"):
		return firstNumber(s, 1)
	case strings.Contains(s, "week"):
		return int(math.Round(float64(firstNumber(s, 1)) / weeksPerMonth))
	case strings.Contains(s, "day"):
		return int(math.Round(float64(firstNumber(s, 1)) / daysPerMonth))
	default:
		return firstNumber(s, 1)
	}
}

func firstNumber(s string, fallback int) int {
	match := numberPattern.FindString(s)
	if match == "" {
		return fallback
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return fallback
	}
	return n
}
