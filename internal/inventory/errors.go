package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// Error carries a human-readable reason and unwraps to one of the sentinels.
type Error struct {
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func notFound(detail string) error {
	return &Error{Kind: ErrNotFound, Detail: detail}
}

func conflict(detail string) error {
	return &Error{Kind: ErrConflict, Detail: detail}
}

func invalid(format string, args ...interface{}) error {
	return &Error{Kind: ErrValidation, Detail: fmt.Sprintf(format, args...)}
}

const (
	msgBookNotFound       = "book not found"
	msgBranchNotFound     = "branch not found"
	msgFacultyNotFound    = "faculty not found"
	msgLinkNotFound       = "book-faculty link not found"
	msgDuplicateBook      = "duplicate book: check title, authors, publisher and year"
	msgBookUpdateConflict = "cannot update book: uniqueness or constraint violated"
	msgBookStocked        = "cannot delete book: it is stocked at branches, set quantity to 0 first"
	msgBranchUpdateFailed = "cannot update branch: constraint violated"
	msgBranchStocked      = "cannot delete branch: it holds books, set quantity to 0 first"
	msgDuplicateFaculty   = "faculty with this name already exists"
	msgFacultyLinked      = "cannot delete faculty: it has linked books, unlink books first"
	msgStockConflict      = "cannot save quantity: constraint violated"
	msgDuplicateLink      = "book-faculty link already exists"
	msgBranchCreateFailed = "cannot create branch: constraint violated"
)
