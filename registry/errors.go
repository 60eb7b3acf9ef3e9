package registry

import (
	"errors"
	"fmt"
)

// ErrRPC is the family error for registry contract violations; the
// specific sentinels wrap it.
var (
	ErrRPC            = errors.New("registry: rpc error")
	ErrDuplicatePoint = fmt.Errorf("%w: point already attached", ErrRPC)
	ErrDuplicateCall  = fmt.Errorf("%w: call endpoint already present", ErrRPC)
	ErrNoRecord       = fmt.Errorf("%w: no record at path", ErrRPC)
	ErrNotAttached    = fmt.Errorf("%w: point not attached", ErrRPC)
	ErrSessionClosed  = fmt.Errorf("%w: registration session is closed", ErrRPC)
)
