package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
)

// PhaseKind distinguishes motion phases from one-shot actions.
type PhaseKind int

const (
	MovePhase PhaseKind = iota
	ActionPhase
)

// Phase is one step of a sequence.
//
// A move phase resolves its target from the origin sample (the first sample after Start) when the
// phase begins and advances once the controller converges. Cartesian targets need Solve to produce
// the joint command. A stuck move aborts the sequence. An action phase polls Ready on every tick,
// runs Do once it holds, waits Settle and advances.
type Phase struct {
	Name string
	Kind PhaseKind

	Target      func(origin FeedbackSample) (PoseTarget, error)
	Solve       func(ctx context.Context, target PoseTarget) (JointCommand, error)
	DetectStall bool
	Approach    Approach

	Ready  func(ctx context.Context) (bool, error)
	Do     func(ctx context.Context) error
	Settle time.Duration
}

// SequenceStatus is the lifecycle of a whole sequence.
type SequenceStatus int

const (
	SequenceIdle SequenceStatus = iota
	SequenceRunning
	SequenceFinished
	SequenceAborted
)

func (s SequenceStatus) String() string {
	switch s {
	case SequenceIdle:
		return "idle"
	case SequenceRunning:
		return "running"
	case SequenceFinished:
		return "finished"
	case SequenceAborted:
		return "aborted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// EventKind labels a sequencer event.
type EventKind int

const (
	PhaseStarted EventKind = iota
	PhaseConverged
	PhaseStuck
	ActionPerformed
	SequenceDone
	SequenceFailed
)

func (k EventKind) String() string {
	switch k {
	case PhaseStarted:
		return "phase_started"
	case PhaseConverged:
		return "converged"
	case PhaseStuck:
		return "stuck"
	case ActionPerformed:
		return "action_performed"
	case SequenceDone:
		return "finished"
	case SequenceFailed:
		return "aborted"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is reported to an EventFunc as the sequence progresses.
type Event struct {
	Kind  EventKind
	Phase string
	Err   error
}

// EventFunc observes sequence events. It is called with the tick lock held and must not call back
// into the Sequencer.
type EventFunc func(Event)

// SleepFunc waits d or until ctx is done, returning false if ctx ended first.
type SleepFunc func(ctx context.Context, d time.Duration) bool

// SequenceSnapshot is a consistent view of a sequencer.
type SequenceSnapshot struct {
	Status SequenceStatus
	Phase  string
	Err    error
}

// Sequencer runs an ordered list of phases against one MotionController.
type Sequencer struct {
	ctrl    *MotionController
	logger  logging.Logger
	sleep   SleepFunc
	onEvent EventFunc

	tickMu sync.Mutex
	phases []Phase
	index  int
	begun  bool
	origin *FeedbackSample

	mu     sync.RWMutex
	status SequenceStatus
	phase  string
	err    error
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithSequencerLogger sets the logger.
func WithSequencerLogger(logger logging.Logger) SequencerOption {
	return func(s *Sequencer) { s.logger = logger }
}

// WithSleep replaces the settle wait, mostly for tests.
func WithSleep(fn SleepFunc) SequencerOption {
	return func(s *Sequencer) { s.sleep = fn }
}

// WithEventFunc registers an event observer.
func WithEventFunc(fn EventFunc) SequencerOption {
	return func(s *Sequencer) { s.onEvent = fn }
}

// NewSequencer returns an idle sequencer driving ctrl.
func NewSequencer(ctrl *MotionController, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		ctrl:  ctrl,
		sleep: utils.SelectContextOrWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewLogger("sequencer")
	}
	return s
}

// Start begins a new sequence. It fails with ErrSequenceActive while another one is running.
func (s *Sequencer) Start(phases []Phase) error {
	if len(phases) == 0 {
		return fmt.Errorf("%w: empty sequence", ErrInvalidTarget)
	}
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.Status() == SequenceRunning {
		return ErrSequenceActive
	}
	s.phases = append([]Phase(nil), phases...)
	s.index = 0
	s.begun = false
	s.origin = nil
	s.setStatus(SequenceRunning, phases[0].Name, nil)
	s.logger.Infof("starting sequence of %d phases", len(phases))
	return nil
}

// Abort stops a running sequence. Later ticks are ignored until the next Start.
func (s *Sequencer) Abort(err error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if s.Status() != SequenceRunning {
		return
	}
	s.abortLocked(err)
}

// OnFeedback advances the running sequence by one sample.
func (s *Sequencer) OnFeedback(ctx context.Context, sample FeedbackSample) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if s.Status() != SequenceRunning {
		return nil
	}
	if s.origin == nil {
		origin := sample
		s.origin = &origin
	}

	phase := s.phases[s.index]
	if !s.begun {
		if err := s.begin(ctx, phase); err != nil {
			s.abortLocked(err)
			return err
		}
	}

	switch phase.Kind {
	case MovePhase:
		return s.tickMove(ctx, phase, sample)
	case ActionPhase:
		return s.tickAction(ctx, phase)
	default:
		err := fmt.Errorf("phase %q has unknown kind %d", phase.Name, phase.Kind)
		s.abortLocked(err)
		return err
	}
}

func (s *Sequencer) begin(ctx context.Context, phase Phase) error {
	if phase.Kind == MovePhase {
		req, err := s.request(ctx, phase)
		if err != nil {
			return err
		}
		if err := s.ctrl.Accept(req); err != nil {
			return fmt.Errorf("starting phase %q: %w", phase.Name, err)
		}
	}
	s.begun = true
	s.setStatus(SequenceRunning, phase.Name, nil)
	s.emit(Event{Kind: PhaseStarted, Phase: phase.Name})
	return nil
}

func (s *Sequencer) request(ctx context.Context, phase Phase) (Request, error) {
	if phase.Target == nil {
		return Request{}, fmt.Errorf("%w: phase %q has no target", ErrInvalidTarget, phase.Name)
	}
	target, err := phase.Target(*s.origin)
	if err != nil {
		return Request{}, fmt.Errorf("resolving target for phase %q: %w", phase.Name, err)
	}
	req := Request{Target: target, DetectStall: phase.DetectStall, Approach: phase.Approach}
	if phase.Solve != nil {
		req.Command, err = phase.Solve(ctx, target)
		if err != nil {
			return Request{}, fmt.Errorf("solving phase %q: %w", phase.Name, err)
		}
	}
	return req, nil
}

func (s *Sequencer) tickMove(ctx context.Context, phase Phase, sample FeedbackSample) error {
	state, err := s.ctrl.OnFeedback(ctx, sample)
	if err != nil {
		return err
	}
	switch state {
	case Converged:
		s.emit(Event{Kind: PhaseConverged, Phase: phase.Name})
		s.advance()
	case Stuck:
		s.emit(Event{Kind: PhaseStuck, Phase: phase.Name})
		s.abortLocked(fmt.Errorf("phase %q stuck: %v", phase.Name, s.ctrl.Progress().Reason))
	}
	return nil
}

func (s *Sequencer) tickAction(ctx context.Context, phase Phase) error {
	if phase.Ready != nil {
		ready, err := phase.Ready(ctx)
		if err != nil {
			return fmt.Errorf("checking phase %q: %w", phase.Name, err)
		}
		if !ready {
			return nil
		}
	}
	if phase.Do != nil {
		if err := phase.Do(ctx); err != nil {
			err = fmt.Errorf("phase %q: %w", phase.Name, err)
			s.abortLocked(err)
			return err
		}
	}
	s.emit(Event{Kind: ActionPerformed, Phase: phase.Name})
	if phase.Settle > 0 && !s.sleep(ctx, phase.Settle) {
		return ctx.Err()
	}
	s.advance()
	return nil
}

func (s *Sequencer) advance() {
	s.index++
	s.begun = false
	if s.index < len(s.phases) {
		s.setStatus(SequenceRunning, s.phases[s.index].Name, nil)
		return
	}
	s.setStatus(SequenceFinished, "", nil)
	s.logger.Info("sequence finished")
	s.emit(Event{Kind: SequenceDone})
}

func (s *Sequencer) abortLocked(err error) {
	name := ""
	if s.index < len(s.phases) {
		name = s.phases[s.index].Name
	}
	s.setStatus(SequenceAborted, name, err)
	s.logger.Warnf("sequence aborted in phase %q: %v", name, err)
	s.emit(Event{Kind: SequenceFailed, Phase: name, Err: err})
}

func (s *Sequencer) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

func (s *Sequencer) setStatus(status SequenceStatus, phase string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.phase = phase
	s.err = err
}

// Status returns the sequence status.
func (s *Sequencer) Status() SequenceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns status, current phase name and abort error together.
func (s *Sequencer) Snapshot() SequenceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SequenceSnapshot{Status: s.status, Phase: s.phase, Err: s.err}
}

// Controller exposes the underlying motion controller for progress queries.
func (s *Sequencer) Controller() *MotionController {
	return s.ctrl
}
