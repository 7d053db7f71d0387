package logic

import (
	"context"
	"sync"
	"time"

	"github.com/beevik/ntp"

	"tally/internal/check"
)

const (
	defaultSkewInterval = 60 * time.Second
)

// SkewPhase tracks the clock-skew checker state machine.
type SkewPhase uint8

const (
	SkewUnchecked SkewPhase = iota + 1
	SkewMeasured
	SkewError
)

func (p SkewPhase) String() string {
	switch p {
	case SkewUnchecked:
		return "unchecked"
	case SkewMeasured:
		return "measured"
	case SkewError:
		return "error"
	default:
		return "unknown"
	}
}

func (p SkewPhase) Transition(to SkewPhase) SkewPhase {
	ok := false
	switch p {
	case SkewUnchecked:
		ok = to == SkewMeasured || to == SkewError
	case SkewMeasured:
		ok = to == SkewMeasured || to == SkewError
	case SkewError:
		ok = to == SkewMeasured || to == SkewError
	}
	check.Assertf(ok, "skew transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}

// SkewStatus is one clock-skew measurement.
type SkewStatus struct {
	Offset    time.Duration
	Phase     SkewPhase
	Error     string
	CheckedAt time.Time
}

// SkewChecker periodically measures local clock offset against NTP so
// slot arithmetic does not trust the local clock blindly. An unreachable
// NTP server keeps the last measurement and flags the error; sync
// judgement degrades to the raw local clock.
type SkewChecker struct {
	mu       sync.RWMutex
	status   SkewStatus
	servers  []string
	interval time.Duration
	clock    Clock

	CheckFunc func() SkewStatus
}

// NewSkewChecker builds a checker over the given NTP servers, tried in
// order until one answers.
func NewSkewChecker(clock Clock, servers []string) *SkewChecker {
	check.Assert(clock != nil, "logic.NewSkewChecker: clock must not be nil")
	return &SkewChecker{
		servers:  servers,
		interval: defaultSkewInterval,
		status:   SkewStatus{Phase: SkewUnchecked},
		clock:    clock,
	}
}

// Run measures immediately and then on every interval tick until ctx is
// done.
func (s *SkewChecker) Run(ctx context.Context) {
	s.check()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check()
		}
	}
}

func (s *SkewChecker) check() {
	if s.CheckFunc != nil {
		s.mu.Lock()
		s.status = s.CheckFunc()
		s.mu.Unlock()
		return
	}

	var (
		resp *ntp.Response
		err  error
	)
	for _, server := range s.servers {
		resp, err = ntp.Query(server)
		if err == nil {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	prev := s.status
	if resp == nil {
		msg := "no ntp servers configured"
		if err != nil {
			msg = err.Error()
		}
		s.status = SkewStatus{
			Offset:    prev.Offset,
			Phase:     prev.Phase.Transition(SkewError),
			Error:     msg,
			CheckedAt: now,
		}
		return
	}
	s.status = SkewStatus{
		Offset:    resp.ClockOffset,
		Phase:     prev.Phase.Transition(SkewMeasured),
		CheckedAt: now,
	}
}

// Status returns the latest measurement.
func (s *SkewChecker) Status() SkewStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
