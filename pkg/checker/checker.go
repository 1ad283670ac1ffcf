// Package checker defines the passphrase verification capability consumed by
// the cracking pipeline, together with an OpenPGP secret-key implementation.
package checker

import (
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/panics"
)

// ErrCheckPanicked is returned by a guarded checker when the wrapped check panicked.
var ErrCheckPanicked = errors.New("check panicked")

// Checker verifies whether a candidate passphrase unlocks the target.
// Implementations must be safe for concurrent use. A check cannot be
// cancelled once started.
type Checker interface {
	// Check reports whether candidate unlocks the target. A non-nil error
	// signals an internal failure; callers treat it as a non-match.
	Check(candidate string) (bool, error)
}

// Func adapts a plain predicate to the [Checker] interface.
type Func func(candidate string) bool

// Check calls f(candidate).
func (f Func) Check(candidate string) (bool, error) {
	return f(candidate), nil
}

type guarded struct {
	inner Checker
}

// Guard wraps a checker so that a panic inside Check is reported as
// [ErrCheckPanicked] instead of tearing down the calling worker.
func Guard(inner Checker) Checker {
	if g, ok := inner.(guarded); ok {
		return g
	}

	return guarded{inner: inner}
}

func (g guarded) Check(candidate string) (bool, error) {
	var (
		catcher panics.Catcher
		match   bool
		err     error
	)

	catcher.Try(func() {
		match, err = g.inner.Check(candidate)
	})

	if recovered := catcher.Recovered(); recovered != nil {
		return false, fmt.Errorf("%w: %v", ErrCheckPanicked, recovered.Value)
	}

	return match, err
}
