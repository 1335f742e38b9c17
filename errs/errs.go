// Package errs provides the context-chaining error helpers used
// throughout the node, built on gitlab.com/NebulousLabs/errors — the
// same wrap/compose library the teacher codebase uses for this exact
// concern (e.g. contractmanager/writeaheadlog.go's AddContext chains).
package errs

import (
	"errors"
	"fmt"

	nlerrors "gitlab.com/NebulousLabs/errors"
)

// AddContext prepends msg to err's message, preserving the error chain.
// A nil err returns nil.
func AddContext(err error, msg string) error {
	return nlerrors.AddContext(err, msg)
}

// AddContextf is AddContext with fmt.Sprintf formatting of msg.
func AddContextf(err error, format string, args ...any) error {
	return nlerrors.AddContext(err, fmt.Sprintf(format, args...))
}

// Compose joins a set of errors into one, skipping nils. It returns nil if
// every argument is nil.
func Compose(errs ...error) error {
	return nlerrors.Compose(errs...)
}

// Is is a re-export of errors.Is so callers need only import errs. It
// also covers the nlerrors.Compose/AddContext chains above, which unwrap
// like any standard-library wrapped error.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is a re-export of errors.As so callers need only import errs.
func As(err error, target any) bool { return errors.As(err, target) }
