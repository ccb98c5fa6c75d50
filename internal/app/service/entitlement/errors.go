package entitlement

import "errors"

// ErrQuotaExceeded means today's counter reached the user's limit and no
// bonus balance was available to cover the overflow.
var ErrQuotaExceeded = errors.New("daily quota exceeded")
