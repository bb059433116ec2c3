package lasso

// State is a state of the completion policy.
type State int

const (
	AwaitingStroke State = iota
	StrokeActive
	CheckingCompletion
	Retry
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingStroke:
		return "awaiting_stroke"
	case StrokeActive:
		return "stroke_active"
	case CheckingCompletion:
		return "checking_completion"
	case Retry:
		return "retry"
	case Done:
		return "done"
	}
	return "unknown"
}

// Outcome is what the policy decided after handling one event.
type Outcome int

const (
	// Continue means more input is expected.
	Continue Outcome = iota
	// RetrySingleCluster means one region covered every point; the attempt
	// was discarded.
	RetrySingleCluster
	// Finish means the attempt produced a TrialResult.
	Finish
	// Ignored means the event arrived after the attempt ended.
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case RetrySingleCluster:
		return "retry_single_cluster"
	case Finish:
		return "finish"
	case Ignored:
		return "ignored"
	}
	return "unknown"
}

// Policy runs one attempt: it feeds pointer events to a Recorder, commits
// finished regions and decides when the attempt is complete.
type Policy struct {
	state    State
	stimulus Stimulus
	clock    monotonic
	recorder *Recorder
	regions  []*Region
	meta     Metadata
	result   *TrialResult
}

// NewPolicy starts a fresh attempt over stimulus. origin is the page offset
// of the drawing surface.
func NewPolicy(stimulus Stimulus, origin Point, clock Clock) *Policy {
	mono := newMonotonic(clock)
	return newPolicy(stimulus, origin, mono, 0)
}

func newPolicy(stimulus Stimulus, origin Point, clock monotonic, startedAt float64) *Policy {
	return &Policy{
		state:    AwaitingStroke,
		stimulus: stimulus,
		clock:    clock,
		recorder: newRecorder(origin, clock),
		meta: Metadata{
			StartDateTime:  clock.clock.Now().UnixMilli(),
			StartTimestamp: clock.stamp(startedAt),
		},
	}
}

// State returns the current state.
func (p *Policy) State() State {
	return p.state
}

// Regions returns the committed regions in commit order.
func (p *Policy) Regions() []*Region {
	out := make([]*Region, len(p.regions))
	copy(out, p.regions)
	return out
}

// Pending returns the samples of the stroke being drawn, if any.
func (p *Policy) Pending() []Sample {
	return p.recorder.Pending()
}

// Coverage projects the committed regions onto the stimulus points.
func (p *Policy) Coverage() []bool {
	return Coverage(p.stimulus.Points, p.regions)
}

// Result returns the TrialResult once the policy is Done.
func (p *Policy) Result() (*TrialResult, bool) {
	return p.result, p.result != nil
}

// Handle processes one pointer event.
func (p *Policy) Handle(ev Event) Outcome {
	if p.state == Retry || p.state == Done {
		return Ignored
	}

	switch ev.Type {
	case PointerDown:
		if p.recorder.Down(ev) {
			p.state = StrokeActive
		}
	case PointerMove:
		p.recorder.Move(ev)
	case PointerUp:
		region := p.recorder.Up(ev)
		if region == nil {
			return Continue
		}
		p.regions = append(p.regions, region)
		p.state = CheckingCompletion
		return p.check(ev)
	}
	return Continue
}

func (p *Policy) check(last Event) Outcome {
	if !IsFullyCovered(p.stimulus.Points, p.regions) {
		p.state = AwaitingStroke
		return Continue
	}

	if len(p.regions) == 1 {
		p.regions = nil
		p.state = Retry
		return RetrySingleCluster
	}

	p.meta.EndTimestamp = p.clock.stamp(last.Timestamp)
	result := &TrialResult{
		Metadata: p.meta,
		Stimulus: p.stimulus,
		Clusters: make([]ClusterRecord, 0, len(p.regions)),
	}
	for _, region := range p.regions {
		result.Clusters = append(result.Clusters, ClusterRecord{
			EdgePoints:      region.Samples(),
			PointMembership: MembershipTable(p.stimulus.Points, region),
		})
	}
	p.result = result
	p.state = Done
	return Finish
}
