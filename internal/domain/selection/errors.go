package selection

import "errors"

// ErrInvalidOrder is returned for an unparseable or out-of-range order setting.
var ErrInvalidOrder = errors.New("invalid background order")
