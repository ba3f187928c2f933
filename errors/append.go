package errors

import "strings"

// Append clubs together all provided errors. Nil values are ignored.
//
// Use this function to combine results of several validation steps into a
// single error value. The first non-nil error determines the root cause of
// the returned error, so Is tests keep working.
func Append(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if m, ok := err.(*multiError); ok {
			nonNil = append(nonNil, m.errs...)
		} else {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &multiError{errs: nonNil}
	}
}

type multiError struct {
	errs []error
}

func (e *multiError) Error() string {
	msgs := make([]string, len(e.errs))
	for i, err := range e.errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Cause returns the first clubbed error. This is enough for Is tests as any
// of the contained errors failing means the whole value is a failure.
func (e *multiError) Cause() error {
	return e.errs[0]
}
