package interval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/spectre/internal/domain/model"
)

// Parse reads one or more selection specs of the form "start-stop", each
// possibly holding several comma separated intervals, and builds a Set.
//
// Bounds may be negative and may use exponent notation. The separator is the
// first '-' that follows a complete number, so "-10-0" is [-10,0),
// "-10--5" is [-10,-5) and "1e-3-5" is [0.001,5).
func Parse(specs ...string) (*Set, error) {
	var intervals []model.Interval
	for _, spec := range specs {
		for _, piece := range strings.Split(spec, ",") {
			iv, err := parseOne(piece)
			if err != nil {
				return nil, err
			}
			intervals = append(intervals, iv)
		}
	}
	return New(intervals...)
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(specs ...string) *Set {
	s, err := Parse(specs...)
	if err != nil {
		panic(err)
	}
	return s
}

func parseOne(piece string) (model.Interval, error) {
	text := strings.Join(strings.Fields(piece), "")
	if text == "" {
		return model.Interval{}, fmt.Errorf("%w: empty interval", ErrInvalidInterval)
	}

	end := scanNumber(text, 0)
	if end < 0 || end >= len(text) || text[end] != '-' {
		return model.Interval{}, fmt.Errorf("%w: %q is not of the form start-stop", ErrInvalidInterval, piece)
	}
	start, err := strconv.ParseFloat(text[:end], 64)
	if err != nil {
		return model.Interval{}, fmt.Errorf("%w: bad start in %q", ErrInvalidInterval, piece)
	}

	rest := end + 1
	stopEnd := scanNumber(text, rest)
	if stopEnd != len(text) {
		return model.Interval{}, fmt.Errorf("%w: %q is not of the form start-stop", ErrInvalidInterval, piece)
	}
	stop, err := strconv.ParseFloat(text[rest:], 64)
	if err != nil {
		return model.Interval{}, fmt.Errorf("%w: bad stop in %q", ErrInvalidInterval, piece)
	}

	return model.Interval{Start: start, Stop: stop}, nil
}

// scanNumber returns the index just past a decimal number starting at i, or
// -1 when no number starts there. A leading sign belongs to the number.
func scanNumber(s string, i int) int {
	j := i
	if j < len(s) && (s[j] == '-' || s[j] == '+') {
		j++
	}

	digits := j
	for j < len(s) && (isDigit(s[j]) || s[j] == '.') {
		j++
	}
	if j == digits {
		return -1
	}

	if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
		k := j + 1
		if k < len(s) && (s[k] == '-' || s[k] == '+') {
			k++
		}
		exp := k
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > exp {
			j = k
		}
	}
	return j
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
