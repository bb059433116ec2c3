package lasso

// Point is a single stimulus point in surface coordinates.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Stimulus is the fixed point set shown for a trial.
type Stimulus struct {
	Points []Point `json:"points" yaml:"points"`
}

// Sample is one recorded position of an in-progress stroke.
type Sample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp float64 `json:"timestamp"`
}

// Membership records whether one stimulus point lies inside one region.
type Membership struct {
	Point  Point `json:"point"`
	Member bool  `json:"member"`
}

// ClusterRecord is the finalized data for one committed region.
type ClusterRecord struct {
	EdgePoints      []Sample     `json:"edgePoints"`
	PointMembership []Membership `json:"pointMembership"`
}

// Metadata holds the wall-clock and monotonic timing of one attempt.
// StartDateTime is milliseconds since the Unix epoch; the timestamps are
// monotonic milliseconds.
type Metadata struct {
	StartDateTime  int64   `json:"startDateTime"`
	StartTimestamp float64 `json:"startTimestamp"`
	EndTimestamp   float64 `json:"endTimestamp"`
}

// TrialResult is the complete output of one successful attempt.
type TrialResult struct {
	Metadata
	Stimulus Stimulus        `json:"stimulus"`
	Clusters []ClusterRecord `json:"clusters"`
}

// Result is a TrialResult annotated with the number of attempts it took.
type Result struct {
	NumberOfTries int `json:"numberOfTries"`
	TrialResult
}
