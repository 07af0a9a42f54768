// Package orchestrator drives strap sequences to completion. It owns the
// single active run, the safe-state reaction to brown-out and transport
// loss, and every telemetry record describing a transition.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orinctl/strapd/internal/bridge"
	"github.com/orinctl/strapd/internal/catalog"
	"github.com/orinctl/strapd/internal/logging"
	"github.com/orinctl/strapd/internal/models"
	"github.com/orinctl/strapd/internal/pins"
	"github.com/orinctl/strapd/internal/power"
	"github.com/orinctl/strapd/internal/queue"
	"github.com/orinctl/strapd/internal/telemetry"
)

// Orchestrator errors.
var (
	// ErrLinkDown rejects submissions while the module transport is lost.
	ErrLinkDown = errors.New("module link is down")
)

// TemplateSource resolves sequence kinds to templates. *catalog.Catalog
// satisfies it.
type TemplateSource interface {
	TemplateFor(kind models.SequenceKind) (*models.Template, error)
}

// Config tunes the orchestrator.
type Config struct {
	// BridgeTimeout bounds bridge-activity waits whose step leaves the
	// timeout unset.
	BridgeTimeout time.Duration
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		BridgeTimeout: catalog.BridgeWaitTimeout,
	}
}

// Orchestrator executes sequence commands one at a time. A single goroutine
// running Run owns the strap lines; Submit and Status are safe to call from
// any goroutine.
type Orchestrator struct {
	cfg       Config
	templates TemplateSource
	driver    pins.Driver
	bridge    *bridge.Monitor
	power     power.Monitor
	queue     *queue.Queue
	emitter   telemetry.Emitter
	logger    zerolog.Logger

	// linkEvents carries transport up/down edges into the run loop.
	linkEvents chan bool

	// intakeMu keeps an enqueue and its queued record atomic with respect
	// to the run loop's dequeue, so the record stream never shows a start
	// ahead of its enqueue.
	intakeMu sync.Mutex

	mu        sync.RWMutex
	state     State
	active    *run
	lastError *Failure
	linkUp    bool

	// now is swappable for tests.
	now func() time.Time
}

// New wires an orchestrator. The link starts attached.
func New(cfg Config, templates TemplateSource, driver pins.Driver, bridgeMon *bridge.Monitor, powerMon power.Monitor, q *queue.Queue, emitter telemetry.Emitter) *Orchestrator {
	if cfg.BridgeTimeout <= 0 {
		cfg.BridgeTimeout = catalog.BridgeWaitTimeout
	}
	if emitter == nil {
		emitter = telemetry.Noop{}
	}
	return &Orchestrator{
		cfg:        cfg,
		templates:  templates,
		driver:     driver,
		bridge:     bridgeMon,
		power:      powerMon,
		queue:      q,
		emitter:    emitter,
		logger:     logging.Component("orchestrator"),
		linkEvents: make(chan bool, 4),
		state:      StateIdle,
		linkUp:     true,
		now:        time.Now,
	}
}

// SetClock overrides the orchestrator's time source. Must be called before
// Run starts.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Submit validates and enqueues a sequence command. The returned command
// carries the assigned ID. A full queue fails with queue.ErrBusy and emits a
// rejection record; a lost link fails with ErrLinkDown.
func (o *Orchestrator) Submit(kind models.SequenceKind, flags models.CommandFlags) (models.Command, error) {
	if _, err := o.templates.TemplateFor(kind); err != nil {
		return models.Command{}, err
	}

	o.mu.RLock()
	linkUp := o.linkUp
	o.mu.RUnlock()
	if !linkUp {
		return models.Command{}, ErrLinkDown
	}

	cmd := models.Command{
		ID:          uuid.New().String(),
		Kind:        kind,
		RequestedAt: o.now(),
		Source:      models.SourceHost,
		Flags:       flags,
	}

	o.intakeMu.Lock()
	if err := o.queue.Enqueue(cmd); err != nil {
		o.intakeMu.Unlock()
		o.emit(models.Record{
			Kind:       models.EventCommandRejected,
			Sequence:   kind,
			Reason:     models.ReasonBusy,
			QueueDepth: o.queue.Depth(),
		})
		return models.Command{}, err
	}
	o.emit(models.Record{
		Kind:       models.EventCommandQueued,
		Sequence:   kind,
		QueueDepth: o.queue.Depth(),
	})
	o.intakeMu.Unlock()

	o.queue.Wake()
	o.logger.Info().Str("command_id", cmd.ID).Str("sequence", string(kind)).Msg("command queued")
	return cmd, nil
}

// LinkUp marks the module transport attached again.
func (o *Orchestrator) LinkUp() {
	o.setLink(true)
}

// LinkDown marks the module transport lost. An active run aborts to the
// safe state and queued commands are discarded.
func (o *Orchestrator) LinkDown() {
	o.setLink(false)
}

func (o *Orchestrator) setLink(up bool) {
	o.mu.Lock()
	changed := o.linkUp != up
	o.linkUp = up
	o.mu.Unlock()
	if !changed {
		return
	}
	select {
	case o.linkEvents <- up:
	default:
	}
}

// Status returns a point-in-time snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status := Status{
		State:      o.state,
		QueueDepth: o.queue.Depth(),
		Lines:      make(map[models.LineID]models.LineLevel, 4),
		LinkUp:     o.linkUp,
	}
	if o.active != nil {
		status.Active = &RunStatus{
			ID:           o.active.id,
			Kind:         o.active.command.Kind,
			StepIndex:    o.active.stepIndex,
			RetryCount:   o.active.retryCount,
			WaitReason:   o.active.waitReason,
			WaitDeadline: o.active.waitDeadline,
		}
	}
	if o.lastError != nil {
		failure := *o.lastError
		status.LastError = &failure
	}
	for _, id := range models.AllLines() {
		if level, err := o.driver.Read(id); err == nil {
			status.Lines[id] = level
		}
	}
	status.Bridge = o.bridge.Snapshot(o.now())
	return status
}

// Run executes commands until ctx is canceled. It must be called exactly
// once; it owns the strap lines for its lifetime.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.safeState()

	for {
		o.intakeMu.Lock()
		cmd, ok := o.queue.TryDequeue()
		o.intakeMu.Unlock()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-o.queue.Notify():
				continue
			case up := <-o.linkEvents:
				o.handleLinkEdge(up)
				continue
			}
		}

		if !o.awaitStartTime(ctx, cmd) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		o.execute(ctx, cmd)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// awaitStartTime honors a command's start-after delay. It returns false when
// the command must not run (context canceled or link lost while waiting).
func (o *Orchestrator) awaitStartTime(ctx context.Context, cmd models.Command) bool {
	notBefore := cmd.NotBefore()
	for {
		delay := notBefore.Sub(o.now())
		if notBefore.IsZero() || delay <= 0 {
			return true
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		case up := <-o.linkEvents:
			timer.Stop()
			if !up {
				o.rejectCommand(cmd, models.ReasonDisconnect)
				o.handleLinkEdge(false)
				return false
			}
		}
	}
}

// execute runs one command to a terminal outcome.
func (o *Orchestrator) execute(ctx context.Context, cmd models.Command) {
	tmpl, err := o.templates.TemplateFor(cmd.Kind)
	if err != nil {
		o.rejectCommand(cmd, models.ReasonBusy)
		return
	}

	r := &run{
		id:        uuid.New().String(),
		command:   cmd,
		startedAt: o.now(),
	}
	o.beginRun(r)

	o.emitRun(r, models.Record{
		Kind:       models.EventCommandStarted,
		QueueDepth: o.queue.Depth(),
	})
	o.emitRun(r, models.Record{Kind: models.EventSequenceArmed})
	o.setState(StateRunning)

	budget := cmd.RetryBudget(tmpl)
	for {
		result := o.executeSteps(ctx, r, tmpl)
		switch result {
		case stepDone:
			o.cooldown(ctx, r, tmpl)
			return
		case stepBrownOut:
			if !o.handleBrownOut(ctx, r, budget) {
				return
			}
			// Re-armed; restart from the first step.
		case stepDisconnected:
			o.failDisconnect(r)
			return
		case stepCanceled:
			o.endRun()
			return
		}
	}
}

// executeSteps walks the template from the run's current attempt start.
func (o *Orchestrator) executeSteps(ctx context.Context, r *run, tmpl *models.Template) stepResult {
	for i, step := range tmpl.Steps {
		o.setStep(r, i)

		if err := o.drive(r, step); err != nil {
			o.logger.Error().Err(err).Str("line", string(step.Line)).Msg("line drive failed")
			// The driver refused; treat as a transport-level fault.
			return stepDisconnected
		}

		var result stepResult
		switch step.Completion.Mode {
		case models.CompleteOnBridgeActivity:
			result = o.waitBridge(ctx, r, step)
		default:
			result = o.waitHold(ctx, r, step.Hold, WaitDuration)
		}
		if result != stepDone {
			return result
		}
	}
	return stepDone
}

// drive applies a step's action and records the edge.
func (o *Orchestrator) drive(r *run, step models.Step) error {
	var (
		err  error
		kind models.EventKind
	)
	switch step.Action {
	case models.ActionAssert:
		err = o.driver.Assert(step.Line)
		kind = models.EventStrapAsserted
	case models.ActionRelease:
		err = o.driver.Release(step.Line)
		kind = models.EventStrapReleased
	}
	if err != nil {
		return err
	}
	o.emitRun(r, models.Record{Kind: kind, Line: step.Line})
	return nil
}

// waitHold suspends the run for a fixed duration while watching the supply,
// the link, and the context.
func (o *Orchestrator) waitHold(ctx context.Context, r *run, hold time.Duration, reason WaitReason) stepResult {
	if hold <= 0 {
		return stepDone
	}
	deadline := o.now().Add(hold)
	o.setWait(r, reason, deadline)
	defer o.setWait(r, WaitNone, time.Time{})

	timer := time.NewTimer(hold)
	defer timer.Stop()
	poll := time.NewTicker(o.power.SampleInterval())
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return stepCanceled
		case <-timer.C:
			return stepDone
		case up := <-o.linkEvents:
			if !up {
				return stepDisconnected
			}
		case <-poll.C:
			if status, _ := o.power.Poll(); status == power.StatusBrownOut {
				return stepBrownOut
			}
		}
	}
}

// waitBridge suspends the run until console traffic appears or the step
// timeout fires. Timeout is a warning, not a failure: the run proceeds as if
// signaled so a headless module can still complete recovery.
func (o *Orchestrator) waitBridge(ctx context.Context, r *run, step models.Step) stepResult {
	timeout := step.Completion.Timeout
	if timeout <= 0 {
		timeout = o.cfg.BridgeTimeout
	}

	ch, err := o.bridge.Arm(timeout)
	if err != nil {
		o.logger.Error().Err(err).Msg("bridge arm failed")
		return stepDone
	}
	o.setWait(r, WaitSignal, o.now().Add(timeout))
	defer o.setWait(r, WaitNone, time.Time{})

	poll := time.NewTicker(o.power.SampleInterval())
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			o.bridge.Disarm()
			return stepCanceled
		case outcome := <-ch:
			if outcome.TimedOut {
				o.emitRun(r, models.Record{
					Kind:   models.EventBridgeTimeout,
					Line:   step.Line,
					Reason: models.ReasonTimeout,
				})
				o.logger.Warn().Str("sequence", string(r.command.Kind)).Msg("no console activity before timeout, continuing")
			} else {
				o.emitRun(r, models.Record{Kind: models.EventBridgeActivity, Line: step.Line})
			}
			return stepDone
		case up := <-o.linkEvents:
			if !up {
				o.bridge.Disarm()
				return stepDisconnected
			}
		case <-poll.C:
			if status, _ := o.power.Poll(); status == power.StatusBrownOut {
				o.bridge.Disarm()
				return stepBrownOut
			}
		}
	}
}

// handleBrownOut releases every line and either re-arms for a retry or
// fails the run. It returns true when the run should restart from its
// first step.
func (o *Orchestrator) handleBrownOut(ctx context.Context, r *run, budget int) bool {
	o.safeState()
	o.emitRun(r, models.Record{
		Kind:       models.EventPowerBrownOut,
		Reason:     models.ReasonBrownOut,
		RetryCount: r.retryCount,
	})
	o.logger.Error().Str("sequence", string(r.command.Kind)).Int("retry_count", r.retryCount).Msg("brown-out during sequence")

	if r.retryCount >= budget {
		reason := models.ReasonBrownOut
		if budget > 0 {
			reason = models.ReasonRetryExhausted
		}
		o.failRun(r, reason)
		return false
	}

	o.withRun(func() { r.beginRetry() })
	o.emitRun(r, models.Record{
		Kind:       models.EventSequenceRetry,
		RetryCount: r.retryCount,
	})

	if result := o.awaitPowerStable(ctx, r); result != stepDone {
		switch result {
		case stepDisconnected:
			o.failDisconnect(r)
		default:
			o.endRun()
		}
		return false
	}
	o.emitRun(r, models.Record{Kind: models.EventPowerStable})
	return true
}

// awaitPowerStable blocks until the rail has stayed stable for the holdoff
// window.
func (o *Orchestrator) awaitPowerStable(ctx context.Context, r *run) stepResult {
	holdoff := o.power.StableHoldoff()
	o.setWait(r, WaitPower, o.now().Add(holdoff))
	defer o.setWait(r, WaitNone, time.Time{})

	poll := time.NewTicker(o.power.SampleInterval())
	defer poll.Stop()

	stableSince := time.Time{}
	for {
		select {
		case <-ctx.Done():
			return stepCanceled
		case up := <-o.linkEvents:
			if !up {
				return stepDisconnected
			}
		case <-poll.C:
			status, sample := o.power.Poll()
			if status == power.StatusBrownOut {
				stableSince = time.Time{}
				continue
			}
			if stableSince.IsZero() {
				stableSince = sample.At
				o.setWait(r, WaitPower, stableSince.Add(holdoff))
				continue
			}
			if sample.At.Sub(stableSince) >= holdoff {
				return stepDone
			}
		}
	}
}

// cooldown holds the mandatory idle interval, then completes the run.
func (o *Orchestrator) cooldown(ctx context.Context, r *run, tmpl *models.Template) {
	o.setState(StateCooldown)
	if tmpl.Cooldown > 0 {
		deadline := o.now().Add(tmpl.Cooldown)
		o.setWait(r, WaitCooldown, deadline)
		timer := time.NewTimer(tmpl.Cooldown)
		defer timer.Stop()
		// Lines are at their defaults here; a link edge during cooldown is
		// logged but does not fail the run.
		for done := false; !done; {
			select {
			case <-ctx.Done():
				o.endRun()
				return
			case <-timer.C:
				done = true
			case up := <-o.linkEvents:
				o.handleLinkEdge(up)
			}
		}
		o.setWait(r, WaitNone, time.Time{})
	}

	summary, _ := json.Marshal(models.RunSummary{
		Outcome:        string(OutcomeCompleted),
		Duration:       o.now().Sub(r.startedAt),
		EventsRecorded: r.events + 1,
		Retries:        r.retryCount,
	})
	o.emitRun(r, models.Record{
		Kind:   models.EventSequenceComplete,
		Detail: summary,
	})
	o.logger.Info().
		Str("run_id", r.id).
		Str("sequence", string(r.command.Kind)).
		Int("retries", r.retryCount).
		Dur("duration", o.now().Sub(r.startedAt)).
		Msg("sequence complete")

	o.setState(StateComplete)
	o.endRun()
}

// failRun terminates the run with a fatal reason and forces the safe state.
func (o *Orchestrator) failRun(r *run, reason models.ReasonCode) {
	o.safeState()
	o.emitRun(r, models.Record{
		Kind:       models.EventSequenceFailed,
		Reason:     reason,
		RetryCount: r.retryCount,
	})
	o.logger.Error().
		Str("run_id", r.id).
		Str("sequence", string(r.command.Kind)).
		Str("reason", string(reason)).
		Msg("sequence failed")

	o.mu.Lock()
	o.state = StateError
	o.active = nil
	o.lastError = &Failure{Reason: reason, At: o.now()}
	o.mu.Unlock()
}

// failDisconnect handles transport loss mid-run: safe state, fatal failure,
// and a discarded backlog.
func (o *Orchestrator) failDisconnect(r *run) {
	o.emitRun(r, models.Record{Kind: models.EventLinkLost, Reason: models.ReasonDisconnect})
	o.failRun(r, models.ReasonDisconnect)
	o.discardBacklog()
}

// handleLinkEdge reacts to a transport edge while no run is being aborted.
func (o *Orchestrator) handleLinkEdge(up bool) {
	if up {
		o.logger.Info().Msg("module link restored")
		return
	}
	o.safeState()
	o.emit(models.Record{Kind: models.EventLinkLost, Reason: models.ReasonDisconnect})
	o.logger.Error().Msg("module link lost")
	o.discardBacklog()
}

// discardBacklog rejects every queued command after a fatal error.
func (o *Orchestrator) discardBacklog() {
	o.intakeMu.Lock()
	drained := o.queue.Drain()
	o.intakeMu.Unlock()
	for _, cmd := range drained {
		o.rejectCommand(cmd, models.ReasonDisconnect)
	}
}

func (o *Orchestrator) rejectCommand(cmd models.Command, reason models.ReasonCode) {
	o.emit(models.Record{
		Kind:       models.EventCommandRejected,
		Sequence:   cmd.Kind,
		Reason:     reason,
		QueueDepth: o.queue.Depth(),
	})
	o.logger.Warn().
		Str("command_id", cmd.ID).
		Str("sequence", string(cmd.Kind)).
		Str("reason", string(reason)).
		Msg("command discarded")
}

// safeState forces every line to its default level.
func (o *Orchestrator) safeState() {
	if err := o.driver.ReleaseAll(); err != nil {
		o.logger.Error().Err(err).Msg("failed to force safe state")
	}
}

func (o *Orchestrator) beginRun(r *run) {
	o.mu.Lock()
	o.state = StateArming
	o.active = r
	o.lastError = nil
	o.mu.Unlock()
}

func (o *Orchestrator) endRun() {
	o.mu.Lock()
	o.state = StateIdle
	o.active = nil
	o.mu.Unlock()
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

func (o *Orchestrator) setStep(r *run, index int) {
	o.mu.Lock()
	r.stepIndex = index
	o.mu.Unlock()
}

func (o *Orchestrator) setWait(r *run, reason WaitReason, deadline time.Time) {
	o.mu.Lock()
	r.waitReason = reason
	r.waitDeadline = deadline
	o.mu.Unlock()
}

func (o *Orchestrator) withRun(fn func()) {
	o.mu.Lock()
	fn()
	o.mu.Unlock()
}

// emit stamps and forwards a record unrelated to the active run.
func (o *Orchestrator) emit(record models.Record) {
	record.ID = uuid.New().String()
	record.Timestamp = o.now()
	o.emitter.Emit(record)
}

// emitRun stamps a record with the active run's identity.
func (o *Orchestrator) emitRun(r *run, record models.Record) {
	record.RunID = r.id
	record.Sequence = r.command.Kind
	o.withRun(func() { r.events++ })
	o.emit(record)
}
