package lock

import "errors"

// ErrNotHeld is returned by Release when the lease expired or was taken
// over before it was given back.
var ErrNotHeld = errors.New("lock not held")
