// Package errors provides typed error values for simulacra.
//
// Callers match these with errors.Is rather than comparing strings. Internal
// packages wrap them with context:
//
//	return fmt.Errorf("need %d bits, have %d: %w", need, have, kerrors.ErrCapacityExceeded)
//
// and the CLI layer maps them to user-facing hints:
//
//	if errors.Is(err, kerrors.ErrIncompleteStream) {
//	    // no hidden message found (wrong image or password)
//	}
package errors
