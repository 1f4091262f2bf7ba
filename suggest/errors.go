package suggest

import "errors"

var (
	// ErrNothingToApply is returned when no suggestion is displayed at the
	// requested index.
	ErrNothingToApply = errors.New("suggest: nothing to apply")
	// ErrStaleAnchor is returned when the remembered position no longer
	// exists in the document.
	ErrStaleAnchor = errors.New("suggest: anchor no longer resolves")
)
