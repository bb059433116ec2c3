package metrics

import (
	"encoding/json"
	"testing"

	"lasso-go/internal/lasso"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *lasso.Result {
	points := []lasso.Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 10, Y: 20}, {X: 20, Y: 20}}
	member := func(flags ...bool) []lasso.Membership {
		out := make([]lasso.Membership, len(points))
		for i, p := range points {
			out[i] = lasso.Membership{Point: p, Member: flags[i]}
		}
		return out
	}

	return &lasso.Result{
		NumberOfTries: 2,
		TrialResult: lasso.TrialResult{
			Metadata: lasso.Metadata{StartDateTime: 1714564800000, StartTimestamp: 100, EndTimestamp: 900},
			Stimulus: lasso.Stimulus{Points: points},
			Clusters: []lasso.ClusterRecord{
				{
					EdgePoints: []lasso.Sample{
						{X: 0, Y: 0, Timestamp: 200}, {X: 30, Y: 0, Timestamp: 250},
						{X: 30, Y: 15, Timestamp: 300}, {X: 0, Y: 15, Timestamp: 400},
					},
					PointMembership: member(true, true, false, false),
				},
				{
					EdgePoints: []lasso.Sample{
						{X: 0, Y: 5, Timestamp: 500}, {X: 30, Y: 5, Timestamp: 550},
						{X: 30, Y: 25, Timestamp: 600}, {X: 0, Y: 25, Timestamp: 700},
					},
					PointMembership: member(true, true, true, true),
				},
			},
		},
	}
}

func TestCalculateClusteringMetrics(t *testing.T) {
	t.Parallel()

	res := sampleResult()
	summary := CalculateClusteringMetrics("participant-1", "result-1", res)

	assert.Equal(t, "participant-1", summary.ParticipantID)
	assert.Equal(t, "result-1", summary.PublicID)
	assert.Equal(t, 2, summary.NumberOfTries)
	assert.Equal(t, 2, summary.ClusterCount)
	assert.Equal(t, 4, summary.StimulusSize)
	assert.Equal(t, 800.0, summary.DurationMs)
	assert.Equal(t, 2, summary.OverlapPoints)
	assert.Equal(t, 8, summary.EdgePointCount)
	assert.Len(t, summary.EdgePoints, 8)
	assert.Len(t, summary.Memberships, 8)
	assert.Equal(t, 200.0, summary.MeanStrokeDuration)
	// Perimeters 90 and 100.
	assert.InDelta(t, 95.0, summary.MeanStrokeLength, 1e-9)

	assert.Equal(t, 1, summary.EdgePoints[4].ClusterIndex)
	assert.Equal(t, 0, summary.EdgePoints[4].Seq)
	assert.True(t, summary.Memberships[6].Member)

	var decoded lasso.Result
	require.NoError(t, json.Unmarshal(summary.RawData, &decoded))
	assert.Equal(t, *res, decoded)
}

func TestExportPayloadShape(t *testing.T) {
	t.Parallel()

	summary := CalculateClusteringMetrics("p", "r", sampleResult())
	payload, err := json.Marshal(Export(summary))
	require.NoError(t, err)

	var outer map[string]string
	require.NoError(t, json.Unmarshal(payload, &outer))
	require.Contains(t, outer, "clusteringData")

	var inner map[string]any
	require.NoError(t, json.Unmarshal([]byte(outer["clusteringData"]), &inner))
	for _, key := range []string{"numberOfTries", "startDateTime", "startTimestamp", "endTimestamp", "stimulus", "clusters"} {
		assert.Contains(t, inner, key)
	}
}

func TestStrokeVelocityMetrics(t *testing.T) {
	t.Parallel()

	summary := CalculateClusteringMetrics("p", "r", sampleResult())
	// Segment speeds are 600, 300, 300 and 600, 400, 300 px/s.
	require.NotNil(t, summary.MeanVelocity)
	assert.InDelta(t, 2500.0/6, *summary.MeanVelocity, 1e-9)
	require.NotNil(t, summary.VelocityVariation)
	assert.Greater(t, *summary.VelocityVariation, 0.0)
}

func TestStrokeVelocityNeedsMovement(t *testing.T) {
	t.Parallel()

	still := []lasso.ClusterRecord{{EdgePoints: []lasso.Sample{
		{X: 5, Y: 5, Timestamp: 10}, {X: 5.5, Y: 5, Timestamp: 20}, {X: 5, Y: 5, Timestamp: 20},
	}}}
	assert.False(t, calculateAverageVelocity(still).Calculated)
	assert.False(t, calculateVelocityVariability(still).Calculated)

	res := sampleResult()
	res.Clusters = still
	summary := CalculateClusteringMetrics("p", "r", res)
	assert.Nil(t, summary.MeanVelocity)
	assert.Nil(t, summary.VelocityVariation)
}

func TestCountOverlaps(t *testing.T) {
	t.Parallel()

	points := []lasso.Point{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	cluster := func(flags ...bool) lasso.ClusterRecord {
		var c lasso.ClusterRecord
		for i, f := range flags {
			c.PointMembership = append(c.PointMembership, lasso.Membership{Point: points[i%len(points)], Member: f})
		}
		return c
	}

	res := &lasso.Result{TrialResult: lasso.TrialResult{
		Stimulus: lasso.Stimulus{Points: points},
		Clusters: []lasso.ClusterRecord{
			cluster(true, true, false),
			cluster(true, false, false),
			// A point in three clusters still counts once; rows past the stimulus are ignored.
			cluster(true, true, false, true),
		},
	}}
	assert.Equal(t, 2, countOverlaps(res))

	res.Clusters = res.Clusters[:1]
	assert.Zero(t, countOverlaps(res))
}
