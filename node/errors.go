package node

import (
	"errors"
	"fmt"
)

// ErrNode is the family error for illegal tree operations; the specific
// sentinels wrap it.
var (
	ErrNode         = errors.New("node: error")
	ErrNoContext    = fmt.Errorf("%w: no context resolvable", ErrNode)
	ErrAlreadyBound = fmt.Errorf("%w: already bound", ErrNode)
	ErrNotBound     = fmt.Errorf("%w: not bound", ErrNode)
	ErrBadChild     = fmt.Errorf("%w: invalid child", ErrNode)
	ErrNoChild      = fmt.Errorf("%w: no such child", ErrNode)
	ErrRegistration = fmt.Errorf("%w: endpoint registration failed", ErrNode)
)
