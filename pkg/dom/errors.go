package dom

import "errors"

// ErrNotFound is returned when a patch targets an element that was never applied.
var ErrNotFound = errors.New("element not found")
