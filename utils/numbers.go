package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseChileanNumber parses a number formatted with '.' as the thousands
// separator and ',' as the decimal separator, e.g. "39.383,07".
func ParseChileanNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chilean number %q: %w", s, err)
	}
	return v, nil
}

// FormatChileanNumber renders v with two decimals, '.' thousands separator
// and ',' decimal separator, e.g. 39383.07 → "39.383,07".
func FormatChileanNumber(v float64) string {
	plain := strconv.FormatFloat(v, 'f', 2, 64)

	sign := ""
	if strings.HasPrefix(plain, "-") {
		sign = "-"
		plain = plain[1:]
	}

	parts := strings.SplitN(plain, ".", 2)
	intPart, decPart := parts[0], parts[1]

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	return sign + strings.Join(groups, ".") + "," + decPart
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	if v < 0 {
		return -Round2(-v)
	}
	return float64(int64(v*100+0.5)) / 100
}
