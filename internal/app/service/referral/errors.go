package referral

import "errors"

var (
	// ErrSelfReferral means a share code resolved to the user it was
	// submitted by.
	ErrSelfReferral = errors.New("cannot use own share code")
	// ErrDuplicateReferral means the user already has a referrer bound.
	ErrDuplicateReferral = errors.New("referral already recorded")
	// ErrUnknownReferrer means the share code matches no user.
	ErrUnknownReferrer = errors.New("share code not found")
)
