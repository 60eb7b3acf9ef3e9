package address

import (
	"errors"
	"fmt"
)

// ErrPath is the family error for every path failure; the specific
// sentinels below all wrap it, so errors.Is(err, ErrPath) matches any
// of them.
var (
	ErrPath          = errors.New("address: path error")
	ErrEmptyPath     = fmt.Errorf("%w: empty value", ErrPath)
	ErrBadValue      = fmt.Errorf("%w: unsupported value kind", ErrPath)
	ErrAmbiguousBase = fmt.Errorf("%w: both sides carry a base", ErrPath)
	ErrNoBase        = fmt.Errorf("%w: relative address without a base", ErrPath)
	ErrNotResolvable = fmt.Errorf("%w: resolution failed", ErrPath)
)
