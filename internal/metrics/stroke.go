package metrics

import (
	"math"
	"sort"

	"lasso-go/internal/lasso"

	"gonum.org/v1/gonum/stat"
)

const (
	// minSegment drops sub-pixel jitter between consecutive samples.
	minSegment = 1.0
	// maxVelocity is in px/s; anything faster is a dropped sample, not drawing.
	maxVelocity = 10000.0
)

// strokeVelocities returns the drawing speed in px/s between consecutive
// samples of every stroke.
func strokeVelocities(clusters []lasso.ClusterRecord) []float64 {
	var velocities []float64
	for _, cluster := range clusters {
		samples := cluster.EdgePoints
		for i := 1; i < len(samples); i++ {
			dt := (samples[i].Timestamp - samples[i-1].Timestamp) / 1000
			if dt <= 0 {
				continue
			}
			distance := math.Hypot(samples[i].X-samples[i-1].X, samples[i].Y-samples[i-1].Y)
			if distance < minSegment {
				continue
			}
			if v := distance / dt; v < maxVelocity {
				velocities = append(velocities, v)
			}
		}
	}
	return velocities
}

// calculateAverageVelocity is the mean drawing speed, trimmed by 5% at both
// ends once there are enough samples.
func calculateAverageVelocity(clusters []lasso.ClusterRecord) MetricResult {
	velocities := strokeVelocities(clusters)
	if len(velocities) == 0 {
		return notCalculated(0)
	}

	if len(velocities) > 10 {
		sort.Float64s(velocities)
		if trim := int(math.Floor(float64(len(velocities)) * 0.05)); trim > 0 {
			velocities = velocities[trim : len(velocities)-trim]
		}
	}

	return MetricResult{
		Value:      stat.Mean(velocities, nil),
		Calculated: true,
		SampleSize: len(velocities),
	}
}

// calculateVelocityVariability is the coefficient of variation of the
// drawing speed after IQR outlier removal.
func calculateVelocityVariability(clusters []lasso.ClusterRecord) MetricResult {
	velocities := strokeVelocities(clusters)
	if len(velocities) < 3 {
		return notCalculated(len(velocities))
	}

	if len(velocities) > 10 {
		sort.Float64s(velocities)
		q1 := stat.Quantile(0.25, stat.Empirical, velocities, nil)
		q3 := stat.Quantile(0.75, stat.Empirical, velocities, nil)
		iqr := q3 - q1
		lower, upper := q1-1.5*iqr, q3+1.5*iqr

		filtered := make([]float64, 0, len(velocities))
		for _, v := range velocities {
			if v >= lower && v <= upper {
				filtered = append(filtered, v)
			}
		}
		// Only use the filtered set if most samples survived.
		if len(filtered) > len(velocities)/2 {
			velocities = filtered
		}
	}

	mean, std := stat.MeanStdDev(velocities, nil)
	if mean == 0 {
		return notCalculated(len(velocities))
	}
	return MetricResult{
		Value:      std / mean,
		Calculated: true,
		SampleSize: len(velocities),
	}
}
