package period

import "errors"

// ErrInvalidPeriod is returned for malformed YYYY-MM input.
var ErrInvalidPeriod = errors.New("invalid period")
