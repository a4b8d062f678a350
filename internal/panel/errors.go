package panel

import "errors"

// Sentinel errors separating transport failures from panel-side
// rejections. Callers retry ErrUnavailable; ErrRejected means the
// request reached the panel and was refused, usually a configuration
// problem worth an operator's attention.
var (
	ErrUnavailable     = errors.New("panel unavailable")
	ErrRejected        = errors.New("panel rejected request")
	ErrAccountNotFound = errors.New("panel account not found")
)
