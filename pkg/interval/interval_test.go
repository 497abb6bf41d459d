package interval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMonths(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"Annually", 12},
		{"Annual PM", 12},
		{"yearly", 12},
		{"Semi-Annually", 6},
		{"biannual", 6},
		{"Quarterly", 3},
		{"every quarter", 3},
		{"Bimonthly", 2},
		{"Monthly", 1},
		{"Every 3 months", 3},
		{"12 Months", 12},
		{"Every 2 weeks", 0},
		{"6 weeks", 1},
		{"45 days", 1},
		{"90 days", 3},
		{"4", 4},
		{"banana", 1},
		{"", 0},
		{"   ", 0},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, ParseMonths(tc.text), "text=%q", tc.text)
	}
}

// Semi-annual must not be swallowed by the "annual" substring check.
func TestParseMonthsSemiAnnualPrecedence(t *testing.T) {
	require.Equal(t, 6, ParseMonths("semi-annual inspection"))
	require.Equal(t, 6, ParseMonths("semiannually"))
	require.Equal(t, 12, ParseMonths("annually"))
}
