package lasso

import "errors"

var (
	ErrAlreadyStarted = errors.New("trial already started")
	ErrNotStarted     = errors.New("trial not started")
	ErrNoRetryPending = errors.New("no retry pending")
	ErrTrialClosed    = errors.New("trial is closed")
)

// Phase is the outer state of a trial.
type Phase int

const (
	NotStarted Phase = iota
	InProgress
	RetryPrompt
	Complete
	Abandoned
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case RetryPrompt:
		return "retry_prompt"
	case Complete:
		return "complete"
	case Abandoned:
		return "abandoned"
	}
	return "unknown"
}

// Callbacks are the outward hooks of a trial. Either may be nil.
type Callbacks struct {
	OnComplete    func(Result)
	OnRetryNeeded func()
}

// Trial wires a surface to successive attempts and reports the final result.
// A Trial is not safe for concurrent use; callers serialize access.
type Trial struct {
	stimulus  Stimulus
	surface   *Surface
	clock     monotonic
	callbacks Callbacks

	phase    Phase
	attempts int
	policy   *Policy
	release  func()
	result   *Result
}

// NewTrial creates a trial over stimulus. Nothing is processed until Begin.
func NewTrial(stimulus Stimulus, surface *Surface, clock Clock, callbacks Callbacks) *Trial {
	points := make([]Point, len(stimulus.Points))
	copy(points, stimulus.Points)

	return &Trial{
		stimulus:  Stimulus{Points: points},
		surface:   surface,
		clock:     newMonotonic(clock),
		callbacks: callbacks,
		phase:     NotStarted,
	}
}

// Begin is the explicit start signal. at is the monotonic start time in
// milliseconds; zero stamps it with the trial clock.
func (t *Trial) Begin(at float64) error {
	switch t.phase {
	case NotStarted:
	case Complete, Abandoned:
		return ErrTrialClosed
	default:
		return ErrAlreadyStarted
	}
	t.startAttempt(at)
	return nil
}

// AcknowledgeRetry starts a fresh attempt after a single-cluster rejection.
func (t *Trial) AcknowledgeRetry(at float64) error {
	switch t.phase {
	case RetryPrompt:
	case NotStarted:
		return ErrNotStarted
	case Complete, Abandoned:
		return ErrTrialClosed
	default:
		return ErrNoRetryPending
	}
	t.startAttempt(at)
	return nil
}

// Abandon tears down the trial from any phase. Further input is ignored.
func (t *Trial) Abandon() {
	if t.phase == Complete || t.phase == Abandoned {
		return
	}
	t.releaseListeners()
	t.policy = nil
	t.phase = Abandoned
}

// Phase returns the current phase.
func (t *Trial) Phase() Phase {
	return t.phase
}

// Attempts returns the number of finished attempts.
func (t *Trial) Attempts() int {
	return t.attempts
}

// Stimulus returns the trial's point set.
func (t *Trial) Stimulus() Stimulus {
	return t.stimulus
}

// Surface returns the drawing surface.
func (t *Trial) Surface() *Surface {
	return t.surface
}

// Policy returns the current attempt, or nil outside InProgress.
func (t *Trial) Policy() *Policy {
	return t.policy
}

// Result returns the final result once the trial is Complete.
func (t *Trial) Result() (*Result, bool) {
	return t.result, t.result != nil
}

func (t *Trial) startAttempt(at float64) {
	t.releaseListeners()
	t.policy = newPolicy(t.stimulus, t.surface.Offset, t.clock, at)
	t.phase = InProgress
	t.release = t.surface.Listen(t.handle)
}

func (t *Trial) handle(ev Event) {
	if t.phase != InProgress || t.policy == nil {
		return
	}

	switch t.policy.Handle(ev) {
	case RetrySingleCluster:
		t.releaseListeners()
		t.attempts++
		t.policy = nil
		t.phase = RetryPrompt
		if t.callbacks.OnRetryNeeded != nil {
			t.callbacks.OnRetryNeeded()
		}
	case Finish:
		t.releaseListeners()
		t.attempts++
		tr, _ := t.policy.Result()
		result := Result{NumberOfTries: t.attempts, TrialResult: *tr}
		t.result = &result
		t.phase = Complete
		if t.callbacks.OnComplete != nil {
			t.callbacks.OnComplete(result)
		}
	}
}

func (t *Trial) releaseListeners() {
	if t.release != nil {
		t.release()
		t.release = nil
	}
}
