package metrics

// MetricResult is one derived value together with whether there was enough
// data to compute it.
type MetricResult struct {
	Value      float64 `json:"value"`
	Calculated bool    `json:"calculated"`
	SampleSize int     `json:"sampleSize,omitempty"`
}

func notCalculated(sampleSize int) MetricResult {
	return MetricResult{Value: 0.0, Calculated: false, SampleSize: sampleSize}
}
