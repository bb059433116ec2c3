package metrics

import (
	"encoding/json"
	"math"
	"time"

	"lasso-go/internal/lasso"
	"lasso-go/internal/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Clustering trial results processing

// CalculateClusteringMetrics turns a completed trial into its stored form:
// the summary row plus one row per edge point and per point membership.
func CalculateClusteringMetrics(participantID, publicID string, res *lasso.Result) *models.ClusteringResult {
	summary := &models.ClusteringResult{
		PublicID:       publicID,
		ParticipantID:  participantID,
		NumberOfTries:  res.NumberOfTries,
		StartDateTime:  res.StartDateTime,
		StartTimestamp: res.StartTimestamp,
		EndTimestamp:   res.EndTimestamp,
		DurationMs:     res.EndTimestamp - res.StartTimestamp,
		StimulusSize:   len(res.Stimulus.Points),
		ClusterCount:   len(res.Clusters),
		OverlapPoints:  countOverlaps(res),
		RawData:        serializeClusteringData(res),
		CreatedAt:      time.Now(),
	}

	durations := make([]float64, 0, len(res.Clusters))
	lengths := make([]float64, 0, len(res.Clusters))

	for ci, cluster := range res.Clusters {
		for si, s := range cluster.EdgePoints {
			summary.EdgePoints = append(summary.EdgePoints, models.ClusterEdgePoint{
				ClusterIndex: ci,
				Seq:          si,
				X:            s.X,
				Y:            s.Y,
				Timestamp:    s.Timestamp,
			})
		}
		for pi, m := range cluster.PointMembership {
			summary.Memberships = append(summary.Memberships, models.ClusterMembership{
				ClusterIndex: ci,
				PointIndex:   pi,
				X:            m.Point.X,
				Y:            m.Point.Y,
				Member:       m.Member,
			})
		}

		if n := len(cluster.EdgePoints); n > 0 {
			durations = append(durations, cluster.EdgePoints[n-1].Timestamp-cluster.EdgePoints[0].Timestamp)
			lengths = append(lengths, strokeLength(cluster.EdgePoints))
		}
	}
	summary.EdgePointCount = len(summary.EdgePoints)

	if len(durations) > 0 {
		summary.MeanStrokeDuration = stat.Mean(durations, nil)
		summary.MeanStrokeLength = stat.Mean(lengths, nil)
	}

	// Speeds are left NULL when the strokes are too short to measure.
	if v := calculateAverageVelocity(res.Clusters); v.Calculated {
		summary.MeanVelocity = &v.Value
	}
	if v := calculateVelocityVariability(res.Clusters); v.Calculated {
		summary.VelocityVariation = &v.Value
	}

	return summary
}

// countOverlaps counts the stimulus points that fall in more than one cluster.
func countOverlaps(res *lasso.Result) int {
	counts := make([]int, len(res.Stimulus.Points))
	for _, cluster := range res.Clusters {
		for i, m := range cluster.PointMembership {
			if m.Member && i < len(counts) {
				counts[i]++
			}
		}
	}

	overlaps := 0
	for _, c := range counts {
		if c > 1 {
			overlaps++
		}
	}
	return overlaps
}

// strokeLength is the perimeter of the closed stroke, closing edge included.
func strokeLength(samples []lasso.Sample) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	segments := make([]float64, n)
	for i := range samples {
		a, b := samples[i], samples[(i+1)%n]
		segments[i] = math.Hypot(b.X-a.X, b.Y-a.Y)
	}
	return floats.Sum(segments)
}

func serializeClusteringData(res *lasso.Result) json.RawMessage {
	data, err := json.Marshal(res)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// Export wraps a stored result in the payload shape the host page expects.
func Export(result *models.ClusteringResult) models.ClusteringExport {
	return models.ClusteringExport{ClusteringData: string(result.RawData)}
}
