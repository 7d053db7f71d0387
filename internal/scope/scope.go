// Package scope implements bounded resource regions as an explicit stack of
// release actions. Acquisitions push their release; Unwind pops and runs
// every release in reverse on the way out, whether the region exits
// normally, early, or by panic.
package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// releaseTimeout bounds each release action so a wedged teardown cannot
// hang process exit.
const releaseTimeout = 15 * time.Second

type release struct {
	name string
	fn   func(context.Context) error
}

// Stack is a LIFO of release actions. The zero value is ready to use.
// Not safe for concurrent use; the orchestration that owns it is
// single-threaded control flow.
type Stack struct {
	releases []release
	unwound  bool
}

// Defer registers fn to run when the stack unwinds. Call it only after the
// matching acquisition fully succeeded; a failed acquisition must clean up
// after itself.
func (s *Stack) Defer(name string, fn func(context.Context) error) {
	s.releases = append(s.releases, release{name: name, fn: fn})
}

// Depth reports how many releases are pending.
func (s *Stack) Depth() int { return len(s.releases) }

// Unwind runs every registered release in reverse registration order,
// exactly once each. Release failures are logged, joined onto *errp after
// whatever failure is already there, and never stop the remaining
// releases. Subsequent calls are no-ops.
//
// Meant to be deferred right after the stack is created:
//
//	var rs scope.Stack
//	defer rs.Unwind(&err)
func (s *Stack) Unwind(errp *error) {
	if s.unwound {
		return
	}
	s.unwound = true

	for i := len(s.releases) - 1; i >= 0; i-- {
		rel := s.releases[i]
		if err := s.runRelease(rel); err != nil {
			slog.Error("resource release failed", "resource", rel.name, "err", err)
			if errp != nil {
				*errp = errors.Join(*errp, fmt.Errorf("release %s: %w", rel.name, err))
			}
		}
	}
	s.releases = nil
}

// runRelease gives each release its own deadline detached from the run
// context, which is typically already cancelled or failed by the time the
// stack unwinds.
func (s *Stack) runRelease(rel release) error {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	return rel.fn(ctx)
}
