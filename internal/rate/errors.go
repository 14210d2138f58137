package rate

import "errors"

// ErrStoreUnavailable indicates the limiter backend is unreachable.
var ErrStoreUnavailable = errors.New("rate limiter backend unavailable")
