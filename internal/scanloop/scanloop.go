// Package scanloop implements the Scan Loop (spec.md §4.4, C4): the single
// cyclic driver thread that reads inputs into logic variables, evaluates
// the logic program, drains pending protocol updates into internal tags,
// and publishes to every registered protocol adapter, sleeping for the
// configured cycle period between passes.
//
// Protocol Client poll loops are registered as independent gocron jobs
// (RegisterBackgroundJob) rather than folded into the scan cycle itself, the
// way the teacher's taskManager package schedules its background services;
// server reverse-poll and update threads run on their own goroutines inside
// each adapter. The scan cycle only owns logic evaluation and the tag
// manager's pending-update drain, per spec.md §4.4's six numbered steps.
package scanloop

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/logic"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/metrics"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/pkg/log"
)

// PeriodicHook is a protocol adapter's periodic scan hook (spec.md §4.4 step
// 3): e.g. a Server's reverse-poll/update-datastore pass, or a Client's
// poll pass. Registered hooks run synchronously, in registration order,
// once per scan cycle, after logic evaluation and before the pending-update
// drain.
type PeriodicHook func()

// Loop is the Scan Loop, C4.
type Loop struct {
	mgr           *tagmanager.Manager
	logic         *logic.Logic
	metrics       *metrics.Registry
	cyclePeriodMs int64

	hooks []PeriodicHook

	sched  gocron.Scheduler
	passes uint64
}

// New returns a Loop driving mgr and lg at the given cycle period. m may be
// nil to disable instrumentation.
func New(mgr *tagmanager.Manager, lg *logic.Logic, m *metrics.Registry, cyclePeriodMs int64) *Loop {
	if cyclePeriodMs <= 0 {
		cyclePeriodMs = 1000
	}
	return &Loop{mgr: mgr, logic: lg, metrics: m, cyclePeriodMs: cyclePeriodMs}
}

// RegisterPeriodicHook adds hook to the set invoked at step 3 of every scan
// cycle (spec.md §4.4). Hooks are not required to be registered before
// Start; they may be added any time before the cycle they should first run
// in.
func (l *Loop) RegisterPeriodicHook(hook PeriodicHook) {
	l.hooks = append(l.hooks, hook)
}

// RegisterBackgroundJob schedules fn to run independently of the scan cycle
// at the given period, on a gocron scheduler that Run starts and shuts down
// (the scan cycle itself is driven by a time.Ticker). Used for protocol
// Client poll loops, which run at their own protocol-specific rates rather
// than the device's cycle period (spec.md §4.5).
func (l *Loop) RegisterBackgroundJob(name string, period time.Duration, fn func()) error {
	if l.sched == nil {
		s, err := gocron.NewScheduler()
		if err != nil {
			return err
		}
		l.sched = s
	}
	_, err := l.sched.NewJob(
		gocron.DurationJob(period),
		gocron.NewTask(fn),
		gocron.WithName(name),
	)
	return err
}

// Run drives the scan cycle until ctx is cancelled. It blocks the calling
// goroutine; callers run it on the device's single scan thread.
func (l *Loop) Run(ctx context.Context) {
	if l.sched != nil {
		l.sched.Start()
		defer l.sched.Shutdown()
	}

	ticker := time.NewTicker(time.Duration(l.cyclePeriodMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		start := time.Now()
		l.pass()
		if l.metrics != nil {
			l.metrics.ObserveScanCycle(time.Since(start).Seconds())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pass runs one full scan cycle per spec.md §4.4's numbered steps 1-6;
// step 7 (sleep) is the caller's ticker, not pass's concern.
func (l *Loop) pass() {
	l.logic.ScanInputs()          // step 1
	l.logic.ScanLogic(l.cyclePeriodMs) // step 2

	for _, hook := range l.hooks { // step 3
		hook()
	}

	if l.metrics != nil {
		binary, analog := l.mgr.PendingDepths()
		l.metrics.SetPendingDepths(binary, analog)
	}

	l.mgr.UpdateInternalData() // step 4
	l.mgr.ClearUpdatedTags()   // step 5

	l.passes++
	if l.passes%10 == 0 { // step 6
		l.debugDump()
	}
}

// debugDump emits a debug-level dump of the external store, per spec.md
// §4.4 step 6 ("every tenth pass, emit a debug dump of the external
// store").
func (l *Loop) debugDump() {
	_, external := l.mgr.Snapshot()
	log.Debugf("scanloop: pass %d external store dump (%d points):", l.passes, len(external))
	for tag, rec := range external {
		log.Debugf("scanloop:   %s = %v @ %.3f", tag, rec.Value.Interface(), rec.Timestamp)
	}
}

// Passes reports the number of completed scan cycles, for tests and
// metrics.
func (l *Loop) Passes() uint64 { return l.passes }
