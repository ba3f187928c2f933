package assert

import (
	"reflect"
	"testing"
)

// Tester is the part of testing.TB the helpers need.
type Tester interface {
	Helper()
	Fatal(...interface{})
	Fatalf(string, ...interface{})
}

// Nil fails the test unless the value is nil. Failures print with %+v so an
// error carrying a stack trace shows the full trace.
func Nil(t Tester, value interface{}) {
	t.Helper()
	if !isNil(value) {
		t.Fatalf("want a nil value, got %+v", value)
	}
}

func isNil(value interface{}) (yes bool) {
	if value == nil {
		return true
	}
	// IsNil panics for kinds that cannot hold nil. Treat those as not
	// nil.
	defer func() {
		if recover() != nil {
			yes = false
		}
	}()
	return reflect.ValueOf(value).IsNil()
}

// Equal fails the test unless want and got are deeply equal.
func Equal(t Tester, want, got interface{}) {
	t.Helper()
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("values not equal \nwant %T %v\n got %T %v", want, want, got, got)
	}
}

// IsErr fails the test unless got matches the wanted error, using the
// wanted error's own Is method when it has one. This follows wrapping
// chains, so a wrapped root error still matches its root.
func IsErr(t testing.TB, want, got error) {
	t.Helper()

	if want == got {
		return
	}

	type comparator interface {
		Is(error) bool
	}
	if want, ok := want.(comparator); ok && want.Is(got) {
		return
	}

	t.Fatalf("want %q, got %+v", want, got)
}
