package selection

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxSupportedOrder is the highest polynomial order the selector considers.
const MaxSupportedOrder = 4

// Order is a background order setting: a fixed polynomial order or Auto.
type Order int

// Auto selects the order per channel by likelihood-ratio test.
const Auto Order = -1

// ParseOrder accepts "auto" or an integer in [0, MaxSupportedOrder]. Only the
// word "auto" selects Auto; "-1" is rejected.
func ParseOrder(s string) (Order, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "auto") {
		return Auto, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOrder, s)
	}
	o := Order(n)
	if err := o.Validate(); err != nil {
		return 0, err
	}
	return o, nil
}

// Validate reports whether o is Auto or a supported fixed order.
func (o Order) Validate() error {
	if o == Auto || (o >= 0 && o <= MaxSupportedOrder) {
		return nil
	}
	return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidOrder, int(o), MaxSupportedOrder)
}

// IsAuto reports whether o requests automatic selection.
func (o Order) IsAuto() bool { return o == Auto }

func (o Order) String() string {
	if o == Auto {
		return "auto"
	}
	return strconv.Itoa(int(o))
}
