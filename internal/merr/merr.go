// Package merr combines independent failures into one error that still answers
// errors.Is for each of them.
package merr

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

type multiErrors struct {
	errs []error
}

func (e multiErrors) Error() string {
	return strings.Join(lo.Map(e.errs, func(err error, _ int) string { return err.Error() }), "; ")
}

func (e multiErrors) Is(target error) bool {
	for _, item := range e.errs {
		if errors.Is(item, target) {
			return true
		}
	}
	return false
}

// Unwrap exposes every combined error to the standard library's traversal.
func (e multiErrors) Unwrap() []error {
	return e.errs
}

// Combine drops nil errors and joins the rest. It returns nil when nothing is
// left and the error itself when only one is.
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return multiErrors{errs: errs}
}
