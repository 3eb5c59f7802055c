package attribution

import "errors"

var (
	// ErrPartnerNotFound: no partner row for the requested id.
	ErrPartnerNotFound = errors.New("partner not found")
	// ErrNoSecret: the partner exists but has no stored signing secret, so it
	// cannot issue or validate links.
	ErrNoSecret = errors.New("partner has no signing secret")
)
