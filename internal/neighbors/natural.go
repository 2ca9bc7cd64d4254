package neighbors

import "strings"

// NaturalCompare orders identifiers by alternating runs of non-digits and
// digits: digit runs compare numerically, other runs case-insensitively.
// Identifiers that are equal under these rules fall back to plain string
// order, so the result is a total order.
func NaturalCompare(a, b string) int {
	ra, rb := splitRuns(a), splitRuns(b)
	for i := 0; i < len(ra) && i < len(rb); i++ {
		x, y := ra[i], rb[i]
		xd, yd := isDigit(x[0]), isDigit(y[0])
		var c int
		switch {
		case xd && yd:
			c = compareNumeric(x, y)
		case xd:
			// digit runs sort before text runs
			c = -1
		case yd:
			c = 1
		default:
			c = strings.Compare(strings.ToLower(x), strings.ToLower(y))
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case len(ra) < len(rb):
		return -1
	case len(ra) > len(rb):
		return 1
	}
	return strings.Compare(a, b)
}

// NaturalLess reports whether a sorts before b in natural order.
func NaturalLess(a, b string) bool {
	return NaturalCompare(a, b) < 0
}

// splitRuns splits s at every boundary between ASCII digits and other bytes.
// UTF-8 continuation bytes are never ASCII digits, so runs stay valid strings.
func splitRuns(s string) []string {
	var runs []string
	start := 0
	for i := 1; i < len(s); i++ {
		if isDigit(s[i-1]) != isDigit(s[i]) {
			runs = append(runs, s[start:i])
			start = i
		}
	}
	if len(s) > 0 {
		runs = append(runs, s[start:])
	}
	return runs
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// compareNumeric compares two digit strings of arbitrary length by value.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
