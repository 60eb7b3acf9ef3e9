package dispatch

import (
	"errors"
	"fmt"
)

// ErrDispatch is the family error for dispatch failures; the specific
// sentinels wrap it.
var (
	ErrDispatch         = errors.New("dispatch: error")
	ErrBadDetails       = fmt.Errorf("%w: invalid dispatch details", ErrDispatch)
	ErrNoDestination    = fmt.Errorf("%w: destination not found", ErrDispatch)
	ErrManyDestinations = fmt.Errorf("%w: more than one call destination", ErrDispatch)
	ErrUnknownType      = fmt.Errorf("%w: unknown dispatch type", ErrDispatch)
)
