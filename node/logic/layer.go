package logic

import (
	"context"
	"sync"

	"tally"
)

// Layer owns the chain logic and its background clock-skew checker.
// The logic is only live inside Run; once Run returns, the checker has
// stopped and the tally.Logic handle must not be used again.
type Layer struct {
	logic   *chainLogic
	checker *SkewChecker
}

// NewLayer builds the logic layer. The checker may be nil when skew
// measurement is not wanted (tests, batch runs against a local store).
func NewLayer(p Params, checker *SkewChecker) *Layer {
	if checker != nil && p.Skew == nil {
		p.Skew = checker.Status
	}
	return &Layer{logic: newChainLogic(p), checker: checker}
}

// Run starts the layer internals, hands a live tally.Logic to action,
// and stops the internals when action returns. The action's error comes
// back unchanged.
func (l *Layer) Run(ctx context.Context, action func(context.Context, tally.Logic) error) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if l.checker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.checker.Run(runCtx)
		}()
	}

	err := action(runCtx, l.logic)
	cancel()
	wg.Wait()
	return err
}
