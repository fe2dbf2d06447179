package ripple

import "errors"

// ErrTransformerUnavailable is returned by Composite.Update when no
// structural transformer was injected or the configured loader failed.
// Update never falls back to a plain Set in that case.
var ErrTransformerUnavailable = errors.New("ripple: structural transformer unavailable")

// ErrTypeMismatch is returned by SetAny when a value cannot be converted to
// the cell's value type.
var ErrTypeMismatch = errors.New("ripple: value type mismatch")

// ErrInvalidPath is returned by the path helpers when a path cannot be
// resolved against the current value.
var ErrInvalidPath = errors.New("ripple: invalid path")

// ErrNotComposite is returned when a path operation reaches a scalar where
// an object or array was required.
var ErrNotComposite = errors.New("ripple: value is not composite")
