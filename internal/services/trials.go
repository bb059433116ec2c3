package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"lasso-go/internal/lasso"
	"lasso-go/internal/render"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

var (
	ErrNoTrial      = errors.New("no open trial")
	ErrInvalidEvent = errors.New("invalid pointer event")
	ErrStaleBatch   = errors.New("stale or duplicate event batch")
	ErrBatchGap     = errors.New("event batch too far ahead")
)

// maxHeldBatches bounds how far ahead of the next expected batch a batch may
// arrive and still be held for later.
const maxHeldBatches = 32

// TrialOptions configures the trial service.
type TrialOptions struct {
	CanvasWidth  int
	CanvasHeight int
	IdleTimeout  time.Duration
	MaxOpen      int
	Clock        lasso.Clock
}

// Status is the view of a participant's trial returned to the browser.
type Status struct {
	Phase       string        `json:"phase"`
	State       string        `json:"state,omitempty"`
	Attempts    int           `json:"attempts"`
	Regions     int           `json:"regions"`
	Covered     []bool        `json:"covered"`
	RetryNeeded bool          `json:"retryNeeded"`
	ResultID    string        `json:"resultId,omitempty"`
	NextSeq     uint64        `json:"nextSeq"`
	Result      *lasso.Result `json:"result,omitempty"`
}

// session is one participant's trial. All access to the trial goes through mu,
// which keeps each trial single-threaded while requests arrive concurrently.
type session struct {
	mu            sync.Mutex
	participantID string
	trial         *lasso.Trial
	retryNeeded   bool
	completed     *lasso.Result
	resultID      string

	// Event batches are numbered from 1 per trial and applied strictly in
	// that order; early arrivals wait in held.
	nextSeq uint64
	held    map[uint64][]lasso.Event
}

// TrialService holds the open trial of every participant in memory.
type TrialService struct {
	log      *zap.Logger
	stimulus lasso.Stimulus
	store    ResultStore
	opts     TrialOptions
	sessions *expirable.LRU[string, *session]
}

func NewTrialService(log *zap.Logger, stimulus lasso.Stimulus, store ResultStore, opts TrialOptions) *TrialService {
	if opts.Clock == nil {
		opts.Clock = lasso.SystemClock{}
	}
	if opts.MaxOpen <= 0 {
		opts.MaxOpen = 1024
	}

	s := &TrialService{
		log:      log,
		stimulus: stimulus,
		store:    store,
		opts:     opts,
	}
	s.sessions = expirable.NewLRU[string, *session](opts.MaxOpen, s.evicted, opts.IdleTimeout)
	return s
}

// evicted runs inside the cache lock; it must not call back into the cache.
func (s *TrialService) evicted(participantID string, sess *session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.trial.Phase() != lasso.Complete {
		s.log.Info("Abandoning idle trial",
			zap.String("participant_id", participantID),
			zap.String("phase", sess.trial.Phase().String()),
			zap.Int("attempts", sess.trial.Attempts()),
		)
	}
	sess.trial.Abandon()
}

// Begin starts a new trial for the participant, abandoning any earlier one.
// offset is the page position of the canvas, at the client's start time.
func (s *TrialService) Begin(ctx context.Context, participantID string, offset lasso.Point, at float64) (Status, error) {
	if prev, ok := s.sessions.Peek(participantID); ok {
		prev.mu.Lock()
		prev.trial.Abandon()
		prev.mu.Unlock()
	}

	sess := &session{participantID: participantID, nextSeq: 1, held: map[uint64][]lasso.Event{}}
	surface := lasso.NewSurface(s.opts.CanvasWidth, s.opts.CanvasHeight, offset)
	sess.trial = lasso.NewTrial(s.stimulus, surface, s.opts.Clock, lasso.Callbacks{
		OnComplete: func(r lasso.Result) {
			sess.completed = &r
		},
		OnRetryNeeded: func() {
			sess.retryNeeded = true
			s.log.Info("Single cluster drawn, retry required",
				zap.String("participant_id", participantID),
				zap.Int("attempts", sess.trial.Attempts()),
			)
		},
	})
	s.sessions.Add(participantID, sess)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.trial.Begin(at); err != nil {
		return Status{}, err
	}
	s.log.Debug("Trial started", zap.String("participant_id", participantID))
	return sess.status(), nil
}

// Dispatch delivers batch seq of pointer events to the participant's trial.
// A batch with any unknown event type is rejected as a whole. Batches are
// applied in seq order whatever order they arrive in: a batch ahead of the
// next expected one is held until the gap is filled, and a batch already
// applied or held is rejected with ErrStaleBatch.
func (s *TrialService) Dispatch(ctx context.Context, participantID string, seq uint64, events []lasso.Event) (Status, error) {
	for i, ev := range events {
		if !ev.Valid() {
			return Status{}, fmt.Errorf("%w: event %d has type %q", ErrInvalidEvent, i, ev.Type)
		}
	}

	sess, err := s.touch(participantID)
	if err != nil {
		return Status{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if _, dup := sess.held[seq]; dup || seq < sess.nextSeq {
		return sess.status(), fmt.Errorf("%w: seq %d, expecting %d", ErrStaleBatch, seq, sess.nextSeq)
	}
	if seq > sess.nextSeq {
		if seq-sess.nextSeq > maxHeldBatches {
			return sess.status(), fmt.Errorf("%w: seq %d, expecting %d", ErrBatchGap, seq, sess.nextSeq)
		}
		sess.held[seq] = events
		s.log.Debug("Holding early event batch",
			zap.String("participant_id", participantID),
			zap.Uint64("seq", seq),
			zap.Uint64("expecting", sess.nextSeq),
		)
		return sess.status(), nil
	}

	sess.apply(events)
	for {
		next, ok := sess.held[sess.nextSeq]
		if !ok {
			break
		}
		delete(sess.held, sess.nextSeq)
		sess.apply(next)
	}

	if err := s.persist(ctx, sess); err != nil {
		return sess.status(), err
	}
	return sess.status(), nil
}

// AcknowledgeRetry starts the next attempt after a single-cluster warning.
func (s *TrialService) AcknowledgeRetry(ctx context.Context, participantID string, at float64) (Status, error) {
	sess, err := s.touch(participantID)
	if err != nil {
		return Status{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.trial.AcknowledgeRetry(at); err != nil {
		return sess.status(), err
	}
	sess.retryNeeded = false
	return sess.status(), nil
}

// Status reports the participant's trial.
func (s *TrialService) Status(participantID string) (Status, error) {
	sess, ok := s.sessions.Get(participantID)
	if !ok {
		return Status{}, ErrNoTrial
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.status(), nil
}

// Snapshot renders the participant's canvas as PNG.
func (s *TrialService) Snapshot(participantID string, w io.Writer) error {
	sess, ok := s.sessions.Get(participantID)
	if !ok {
		return ErrNoTrial
	}

	sess.mu.Lock()
	canvas := render.FromTrial(sess.trial)
	sess.mu.Unlock()

	return render.PNG(w, canvas)
}

// Abandon closes the participant's trial without producing a result.
func (s *TrialService) Abandon(participantID string) error {
	// Remove runs evicted, which abandons the trial.
	if !s.sessions.Remove(participantID) {
		return ErrNoTrial
	}
	return nil
}

// Open returns the number of trials held in memory.
func (s *TrialService) Open() int {
	return s.sessions.Len()
}

// Close abandons every open trial.
func (s *TrialService) Close() {
	s.sessions.Purge()
}

// touch looks the session up and refreshes its idle timer.
func (s *TrialService) touch(participantID string) (*session, error) {
	sess, ok := s.sessions.Get(participantID)
	if !ok {
		return nil, ErrNoTrial
	}
	s.sessions.Add(participantID, sess)
	return sess, nil
}

// persist hands a completed result to the store once.
func (s *TrialService) persist(ctx context.Context, sess *session) error {
	if sess.completed == nil || sess.resultID != "" {
		return nil
	}

	id, err := s.store.Save(ctx, sess.participantID, *sess.completed)
	if err != nil {
		s.log.Error("Failed to store clustering result",
			zap.String("participant_id", sess.participantID),
			zap.Error(err),
		)
		return err
	}
	sess.resultID = id
	return nil
}

// apply dispatches one batch and advances the expected seq.
func (sess *session) apply(events []lasso.Event) {
	surface := sess.trial.Surface()
	for _, ev := range events {
		surface.Dispatch(ev)
	}
	sess.nextSeq++
}

func (sess *session) status() Status {
	t := sess.trial
	st := Status{
		Phase:       t.Phase().String(),
		Attempts:    t.Attempts(),
		RetryNeeded: sess.retryNeeded,
		ResultID:    sess.resultID,
		NextSeq:     sess.nextSeq,
		Covered:     make([]bool, len(t.Stimulus().Points)),
	}

	if p := t.Policy(); p != nil {
		st.State = p.State().String()
		st.Regions = len(p.Regions())
		st.Covered = p.Coverage()
	}
	if res, ok := t.Result(); ok {
		st.Result = res
	}
	return st
}
