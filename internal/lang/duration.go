package lang

import (
	"fmt"
	"strconv"
	"time"
)

// durationMultiplier maps a duration unit to its millisecond multiplier,
// per the literal syntax number<unit> with unit in {ms,s,m,h,d,w,y}.
var durationMultiplier = map[string]float64{
	"ms": 1,
	"s":  1000,
	"m":  60000,
	"h":  3.6e6,
	"d":  8.64e7,
	"w":  6.048e8,
	"y":  3.1536e10,
}

// ParseDuration parses a duration literal such as "5m", "1.5h" or a
// compound literal like "1h30m" into a time.Duration. Each group is a
// number followed by a unit ("ms" or one of s/m/h/d/w/y); a decimal point
// is only permitted in the literal's first group.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid duration literal %q", s)
	}

	var totalMS float64
	i := 0
	for i < len(s) {
		start := i
		for i < len(s) && (isASCIIDigit(s[i]) || s[i] == '_') {
			i++
		}
		if start == i {
			return 0, fmt.Errorf("invalid duration literal %q", s)
		}
		if start == 0 && i < len(s) && s[i] == '.' {
			i++
			for i < len(s) && (isASCIIDigit(s[i]) || s[i] == '_') {
				i++
			}
		}
		numStr := s[start:i]

		var unit string
		switch {
		case i+1 < len(s) && s[i] == 'm' && s[i+1] == 's':
			unit, i = "ms", i+2
		case i < len(s):
			unit, i = s[i:i+1], i+1
		default:
			return 0, fmt.Errorf("invalid duration literal %q: missing unit", s)
		}

		mult, ok := durationMultiplier[unit]
		if !ok {
			return 0, fmt.Errorf("invalid duration literal %q: unknown unit %q", s, unit)
		}
		n, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration literal %q: %w", s, err)
		}
		totalMS += n * mult
	}

	return time.Duration(totalMS * float64(time.Millisecond)), nil
}

func isASCIIDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
