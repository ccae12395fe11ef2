// Package errors classifies pipeline failures by the unit of work they affect.
//
// Every failure in a batch run is scoped to one frame or one sequence; the
// category tells the caller whether to drop the frame, null a field or skip
// the whole sequence.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Category is the failure class of an Error.
type Category string

const (
	CategoryMissingMatch  Category = "missing-match"        // filename does not follow the naming convention
	CategoryDegenerate    Category = "degenerate-detection" // zero-moment contour or zero-length motion vector
	CategoryMissingAnchor Category = "missing-anchor"       // no usable reference object for a sequence
	CategoryFileIO        Category = "file-io"              // unreadable or unwritable file
	CategoryConfiguration Category = "configuration"
)

// Sentinels for errors.Is against a category.
var (
	ErrMissingMatch  = &Error{Category: CategoryMissingMatch}
	ErrDegenerate    = &Error{Category: CategoryDegenerate}
	ErrMissingAnchor = &Error{Category: CategoryMissingAnchor}
	ErrFileIO        = &Error{Category: CategoryFileIO}
	ErrConfiguration = &Error{Category: CategoryConfiguration}
)

// Error carries a category, the unit of work it belongs to and the cause.
type Error struct {
	Category Category
	Unit     string // frame path or sequence key
	Err      error
}

// New creates an Error for unit with a formatted message.
func New(category Category, unit, format string, args ...any) *Error {
	return &Error{Category: category, Unit: unit, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a category and unit to err. It returns nil for a nil err.
func Wrap(category Category, unit string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Unit: unit, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return string(e.Category)
	case e.Unit == "":
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Unit, e.Err)
	}
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Category == e.Category
}

// CategoryOf returns the category of the first *Error in err's chain.
func CategoryOf(err error) (Category, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Category, true
	}
	return "", false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
