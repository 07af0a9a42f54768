package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orinctl/strapd/internal/bridge"
	"github.com/orinctl/strapd/internal/models"
	"github.com/orinctl/strapd/internal/pins"
	"github.com/orinctl/strapd/internal/power"
	"github.com/orinctl/strapd/internal/queue"
	"github.com/orinctl/strapd/internal/telemetry"
)

// stubTemplates serves millisecond-scale templates so tests never sleep for
// hardware durations.
type stubTemplates struct {
	templates map[models.SequenceKind]*models.Template
}

func (s *stubTemplates) TemplateFor(kind models.SequenceKind) (*models.Template, error) {
	tmpl, ok := s.templates[kind]
	if !ok {
		return nil, fmt.Errorf("unknown sequence kind %q", kind)
	}
	return tmpl, nil
}

// fastReboot is a four-step power cycle compressed to test scale.
func fastReboot(stepHold time.Duration) *models.Template {
	return &models.Template{
		Kind: models.SequenceNormalReboot,
		Steps: []models.Step{
			{Line: models.LinePower, Action: models.ActionAssert, Hold: stepHold, Completion: models.AfterHold()},
			{Line: models.LinePower, Action: models.ActionRelease, Hold: stepHold, Completion: models.AfterHold()},
			{Line: models.LineReset, Action: models.ActionAssert, Hold: stepHold / 2, Completion: models.AfterHold()},
			{Line: models.LineReset, Action: models.ActionRelease, Completion: models.AfterHold()},
		},
		Cooldown: stepHold,
	}
}

type harness struct {
	orch     *Orchestrator
	driver   *pins.MemoryDriver
	bridgeM  *bridge.Monitor
	powerM   *power.SimMonitor
	queue    *queue.Queue
	recorder *telemetry.Recorder
}

func newHarness(t *testing.T, templates map[models.SequenceKind]*models.Template) *harness {
	t.Helper()

	h := &harness{
		driver:   pins.NewMemoryDriver(),
		bridgeM:  bridge.NewMonitor(time.Millisecond),
		powerM:   power.NewSimMonitor(),
		queue:    queue.New(),
		recorder: telemetry.NewRecorder(256),
	}
	h.powerM.SetInterval(time.Millisecond)
	h.powerM.SetHoldoff(5 * time.Millisecond)

	h.orch = New(
		Config{BridgeTimeout: 100 * time.Millisecond},
		&stubTemplates{templates: templates},
		h.driver,
		h.bridgeM,
		h.powerM,
		h.queue,
		h.recorder,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) await(t *testing.T, kind models.EventKind, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.recorder.CountKind(kind) >= count
	}, 2*time.Second, 2*time.Millisecond, "waiting for %s x%d", kind, count)
}

func (h *harness) kinds() []models.EventKind {
	records := h.recorder.Records()
	out := make([]models.EventKind, len(records))
	for i, record := range records {
		out[i] = record.Kind
	}
	return out
}

func indexOf(kinds []models.EventKind, kind models.EventKind) int {
	for i, k := range kinds {
		if k == kind {
			return i
		}
	}
	return -1
}

func TestNormalSequenceCompletes(t *testing.T) {
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceNormalReboot: fastReboot(10 * time.Millisecond),
	})

	cmd, err := h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
	require.NoError(t, err)
	require.NotEmpty(t, cmd.ID)

	h.await(t, models.EventSequenceComplete, 1)

	kinds := h.kinds()
	require.Less(t, indexOf(kinds, models.EventCommandQueued), indexOf(kinds, models.EventCommandStarted))
	require.Less(t, indexOf(kinds, models.EventCommandStarted), indexOf(kinds, models.EventSequenceArmed))
	require.Less(t, indexOf(kinds, models.EventSequenceArmed), indexOf(kinds, models.EventStrapAsserted))

	// One record per step: two asserts and two releases.
	require.Equal(t, 2, h.recorder.CountKind(models.EventStrapAsserted))
	require.Equal(t, 2, h.recorder.CountKind(models.EventStrapReleased))

	// Two physical edges per pulsed line, none anywhere else.
	require.Equal(t, 2, h.driver.TransitionCount(models.LinePower))
	require.Equal(t, 2, h.driver.TransitionCount(models.LineReset))
	require.Equal(t, 0, h.driver.TransitionCount(models.LineRecovery))

	complete := h.recorder.OfKind(models.EventSequenceComplete)[0]
	var summary models.RunSummary
	require.NoError(t, json.Unmarshal(complete.Detail, &summary))
	require.Equal(t, string(OutcomeCompleted), summary.Outcome)
	require.Zero(t, summary.Retries)
	require.Positive(t, summary.Duration)

	require.Eventually(t, func() bool {
		return h.orch.Status().State == StateIdle
	}, time.Second, 2*time.Millisecond)

	status := h.orch.Status()
	require.Nil(t, status.Active)
	require.Nil(t, status.LastError)
	for _, id := range models.AllLines() {
		require.Equal(t, models.LevelReleased, status.Lines[id])
	}
}

func TestStatusDuringRun(t *testing.T) {
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceNormalReboot: fastReboot(300 * time.Millisecond),
	})

	_, err := h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status := h.orch.Status()
		return status.Active != nil && status.Active.WaitReason == WaitDuration
	}, time.Second, 2*time.Millisecond)

	status := h.orch.Status()
	require.Equal(t, StateRunning, status.State)
	require.Equal(t, models.SequenceNormalReboot, status.Active.Kind)
	require.False(t, status.Active.WaitDeadline.IsZero())
	require.Equal(t, models.LevelAsserted, status.Lines[models.LinePower])
}

func TestBridgeActivityGatesRecoveryRelease(t *testing.T) {
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceRecoveryImmediate: {
			Kind: models.SequenceRecoveryImmediate,
			Steps: []models.Step{
				{Line: models.LineRecovery, Action: models.ActionAssert, Hold: 5 * time.Millisecond, Completion: models.AfterHold()},
				{Line: models.LineRecovery, Action: models.ActionAssert, Completion: models.OnBridgeActivity(time.Second)},
				{Line: models.LineRecovery, Action: models.ActionRelease, Completion: models.AfterHold()},
			},
			Cooldown: 5 * time.Millisecond,
		},
	})

	_, err := h.orch.Submit(models.SequenceRecoveryImmediate, models.CommandFlags{})
	require.NoError(t, err)

	// The run parks on the bridge wait; recovery stays asserted.
	require.Eventually(t, func() bool {
		status := h.orch.Status()
		return status.Active != nil && status.Active.WaitReason == WaitSignal
	}, time.Second, 2*time.Millisecond)
	level, err := h.driver.Read(models.LineRecovery)
	require.NoError(t, err)
	require.Equal(t, models.LevelAsserted, level)
	require.True(t, h.orch.Status().Bridge.Waiting)

	h.bridgeM.Observe(bridge.DirectionInbound, 32, time.Now())

	h.await(t, models.EventSequenceComplete, 1)
	require.Equal(t, 1, h.recorder.CountKind(models.EventBridgeActivity))
	require.Zero(t, h.recorder.CountKind(models.EventBridgeTimeout))
}

func TestBridgeTimeoutWarnsAndContinues(t *testing.T) {
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceRecoveryImmediate: {
			Kind: models.SequenceRecoveryImmediate,
			Steps: []models.Step{
				{Line: models.LineRecovery, Action: models.ActionAssert, Completion: models.OnBridgeActivity(20 * time.Millisecond)},
				{Line: models.LineRecovery, Action: models.ActionRelease, Completion: models.AfterHold()},
			},
			Cooldown: 5 * time.Millisecond,
		},
	})

	_, err := h.orch.Submit(models.SequenceRecoveryImmediate, models.CommandFlags{})
	require.NoError(t, err)

	h.await(t, models.EventSequenceComplete, 1)

	timeouts := h.recorder.OfKind(models.EventBridgeTimeout)
	require.Len(t, timeouts, 1)
	require.Equal(t, models.ReasonTimeout, timeouts[0].Reason)
	require.Zero(t, h.recorder.CountKind(models.EventSequenceFailed))
}

func TestBrownOutRetriesAndCompletes(t *testing.T) {
	tmpl := fastReboot(30 * time.Millisecond)
	tmpl.Kind = models.SequenceFaultRecovery
	tmpl.MaxRetries = 2
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceFaultRecovery: tmpl,
	})

	_, err := h.orch.Submit(models.SequenceFaultRecovery, models.CommandFlags{})
	require.NoError(t, err)
	h.await(t, models.EventCommandStarted, 1)

	h.powerM.SetStatus(power.StatusBrownOut, 2100)
	h.await(t, models.EventSequenceRetry, 1)

	// All straps must be back at their defaults while the retry waits for
	// the rail to recover.
	for _, id := range models.AllLines() {
		level, err := h.driver.Read(id)
		require.NoError(t, err)
		require.Equal(t, models.LevelReleased, level)
	}

	h.powerM.SetStatus(power.StatusStable, 3300)
	h.await(t, models.EventPowerStable, 1)
	h.await(t, models.EventSequenceComplete, 1)

	complete := h.recorder.OfKind(models.EventSequenceComplete)[0]
	var summary models.RunSummary
	require.NoError(t, json.Unmarshal(complete.Detail, &summary))
	require.Equal(t, 1, summary.Retries)
	require.Equal(t, 1, h.recorder.CountKind(models.EventPowerBrownOut))
}

func TestBrownOutWithoutBudgetIsFatal(t *testing.T) {
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceNormalReboot: fastReboot(50 * time.Millisecond),
	})

	_, err := h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
	require.NoError(t, err)
	h.await(t, models.EventCommandStarted, 1)

	h.powerM.SetStatus(power.StatusBrownOut, 1900)
	h.await(t, models.EventSequenceFailed, 1)

	failed := h.recorder.OfKind(models.EventSequenceFailed)[0]
	require.Equal(t, models.ReasonBrownOut, failed.Reason)
	require.Zero(t, h.recorder.CountKind(models.EventSequenceRetry))

	status := h.orch.Status()
	require.Equal(t, StateError, status.State)
	require.NotNil(t, status.LastError)
	require.Equal(t, models.ReasonBrownOut, status.LastError.Reason)
	for _, id := range models.AllLines() {
		require.Equal(t, models.LevelReleased, status.Lines[id])
	}
}

func TestBrownOutRetryExhausted(t *testing.T) {
	tmpl := fastReboot(30 * time.Millisecond)
	tmpl.Kind = models.SequenceFaultRecovery
	tmpl.MaxRetries = 1
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceFaultRecovery: tmpl,
	})

	_, err := h.orch.Submit(models.SequenceFaultRecovery, models.CommandFlags{})
	require.NoError(t, err)
	h.await(t, models.EventCommandStarted, 1)

	h.powerM.SetStatus(power.StatusBrownOut, 2100)
	h.await(t, models.EventSequenceRetry, 1)

	h.powerM.SetStatus(power.StatusStable, 3300)
	h.await(t, models.EventPowerStable, 1)

	// Second brown-out lands with the budget spent.
	h.powerM.SetStatus(power.StatusBrownOut, 2100)
	h.await(t, models.EventSequenceFailed, 1)

	failed := h.recorder.OfKind(models.EventSequenceFailed)[0]
	require.Equal(t, models.ReasonRetryExhausted, failed.Reason)
	require.Equal(t, 1, failed.RetryCount)
	require.Equal(t, 1, h.recorder.CountKind(models.EventSequenceRetry), "no retry beyond the budget")
	require.Equal(t, StateError, h.orch.Status().State)
}

func TestRetryOverrideWins(t *testing.T) {
	tmpl := fastReboot(50 * time.Millisecond)
	tmpl.Kind = models.SequenceFaultRecovery
	tmpl.MaxRetries = 3
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceFaultRecovery: tmpl,
	})

	zero := 0
	_, err := h.orch.Submit(models.SequenceFaultRecovery, models.CommandFlags{RetryOverride: &zero})
	require.NoError(t, err)
	h.await(t, models.EventCommandStarted, 1)

	h.powerM.SetStatus(power.StatusBrownOut, 2100)
	h.await(t, models.EventSequenceFailed, 1)
	require.Zero(t, h.recorder.CountKind(models.EventSequenceRetry))
}

func TestQueueFullRejectsSubmission(t *testing.T) {
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceNormalReboot: fastReboot(300 * time.Millisecond),
	})

	// First command starts immediately and occupies the engine; the queue
	// then fills to capacity behind it.
	_, err := h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
	require.NoError(t, err)
	h.await(t, models.EventCommandStarted, 1)

	for i := 0; i < queue.Capacity; i++ {
		_, err := h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
		require.NoError(t, err)
	}

	_, err = h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
	require.ErrorIs(t, err, queue.ErrBusy)

	rejected := h.recorder.OfKind(models.EventCommandRejected)
	require.Len(t, rejected, 1)
	require.Equal(t, models.ReasonBusy, rejected[0].Reason)
}

func TestQueuedCommandRunsAfterActive(t *testing.T) {
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceNormalReboot: fastReboot(10 * time.Millisecond),
	})

	_, err := h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
	require.NoError(t, err)
	_, err = h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
	require.NoError(t, err)

	h.await(t, models.EventSequenceComplete, 2)

	// The second start strictly follows the first completion.
	kinds := h.kinds()
	firstComplete := indexOf(kinds, models.EventSequenceComplete)
	secondStart := -1
	starts := 0
	for i, k := range kinds {
		if k == models.EventCommandStarted {
			starts++
			if starts == 2 {
				secondStart = i
			}
		}
	}
	require.Greater(t, secondStart, firstComplete)
}

func TestDisconnectAbortsAndDiscardsBacklog(t *testing.T) {
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceNormalReboot: fastReboot(300 * time.Millisecond),
	})

	_, err := h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
	require.NoError(t, err)
	_, err = h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
	require.NoError(t, err)
	h.await(t, models.EventCommandStarted, 1)

	h.orch.LinkDown()

	h.await(t, models.EventSequenceFailed, 1)
	failed := h.recorder.OfKind(models.EventSequenceFailed)[0]
	require.Equal(t, models.ReasonDisconnect, failed.Reason)
	require.GreaterOrEqual(t, h.recorder.CountKind(models.EventLinkLost), 1)

	// The queued command was discarded with a rejection record.
	h.await(t, models.EventCommandRejected, 1)
	rejected := h.recorder.OfKind(models.EventCommandRejected)[0]
	require.Equal(t, models.ReasonDisconnect, rejected.Reason)

	status := h.orch.Status()
	require.Equal(t, StateError, status.State)
	require.False(t, status.LinkUp)
	require.Zero(t, status.QueueDepth)
	for _, id := range models.AllLines() {
		require.Equal(t, models.LevelReleased, status.Lines[id])
	}

	// Submissions bounce until the link returns.
	_, err = h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
	require.ErrorIs(t, err, ErrLinkDown)

	h.orch.LinkUp()
	require.Eventually(t, func() bool {
		_, err := h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestStartAfterDelaysExecution(t *testing.T) {
	h := newHarness(t, map[models.SequenceKind]*models.Template{
		models.SequenceNormalReboot: fastReboot(time.Millisecond),
	})

	before := time.Now()
	_, err := h.orch.Submit(models.SequenceNormalReboot, models.CommandFlags{StartAfter: 60 * time.Millisecond})
	require.NoError(t, err)

	h.await(t, models.EventCommandStarted, 1)
	started := h.recorder.OfKind(models.EventCommandStarted)[0]
	require.GreaterOrEqual(t, started.Timestamp.Sub(before), 50*time.Millisecond)
}

func TestSubmitUnknownSequence(t *testing.T) {
	h := newHarness(t, map[models.SequenceKind]*models.Template{})

	_, err := h.orch.Submit("warp-speed", models.CommandFlags{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown sequence")
	require.Zero(t, h.recorder.CountKind(models.EventCommandQueued))
}

// intakeOrderEmitter trips when a start record overtakes its queued record.
type intakeOrderEmitter struct {
	mu       sync.Mutex
	queued   int
	started  int
	inverted bool
}

func (e *intakeOrderEmitter) Emit(record models.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch record.Kind {
	case models.EventCommandQueued:
		e.queued++
	case models.EventCommandStarted:
		e.started++
		if e.started > e.queued {
			e.inverted = true
		}
	}
}

func (e *intakeOrderEmitter) snapshot() (started int, inverted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started, e.inverted
}

func TestQueuedRecordAlwaysPrecedesStart(t *testing.T) {
	instant := &models.Template{
		Kind: models.SequenceNormalReboot,
		Steps: []models.Step{
			{Line: models.LineReset, Action: models.ActionAssert, Completion: models.AfterHold()},
			{Line: models.LineReset, Action: models.ActionRelease, Completion: models.AfterHold()},
		},
	}

	em := &intakeOrderEmitter{}
	orch := New(
		Config{},
		&stubTemplates{templates: map[models.SequenceKind]*models.Template{models.SequenceNormalReboot: instant}},
		pins.NewMemoryDriver(),
		bridge.NewMonitor(time.Millisecond),
		power.NewSimMonitor(),
		queue.New(),
		em,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Flood instant commands so submissions land while the loop is mid-drain,
	// the window where a start could slip ahead of its queued record.
	const total = 500
	for i := 0; i < total; i++ {
		for {
			_, err := orch.Submit(models.SequenceNormalReboot, models.CommandFlags{})
			if err == nil {
				break
			}
			require.ErrorIs(t, err, queue.ErrBusy)
			time.Sleep(100 * time.Microsecond)
		}
	}

	require.Eventually(t, func() bool {
		started, _ := em.snapshot()
		return started == total
	}, 10*time.Second, time.Millisecond)

	_, inverted := em.snapshot()
	require.False(t, inverted, "a command started before its queued record was published")
}
