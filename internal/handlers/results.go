// internal/handlers/results.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"lasso-go/internal/metrics"
	"lasso-go/internal/models"
	"lasso-go/internal/repository"
	"lasso-go/views"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

type ResultsHandler struct {
	log    *zap.Logger
	width  int
	height int
}

func NewResultsHandler(log *zap.Logger, width, height int) *ResultsHandler {
	return &ResultsHandler{log: log, width: width, height: height}
}

// ShowResults lists the participant's completed trials.
func (h *ResultsHandler) ShowResults(c *gin.Context) {
	participantID := c.GetString(ParticipantIDKey)
	results, err := repository.ListClusteringResults(c.Request.Context(), participantID)
	if err != nil {
		h.log.Error("Failed to list clustering results", zap.Error(err), zap.String("participant_id", participantID))
		c.String(http.StatusInternalServerError, "Failed to load results")
		return
	}

	rows := make([]views.ResultRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, views.ResultRow{
			ID:         r.PublicID,
			Clusters:   r.ClusterCount,
			Tries:      r.NumberOfTries,
			DurationMs: r.DurationMs,
		})
	}

	h.render(c, "Results", views.ResultsList(rows))
}

// Export returns one result in the payload shape the host page consumes.
func (h *ResultsHandler) Export(c *gin.Context) {
	result, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, metrics.Export(result))
}

// ShowChart plots a result's clusters on the canvas plane.
func (h *ResultsHandler) ShowChart(c *gin.Context) {
	result, ok := h.load(c)
	if !ok {
		return
	}

	chart := generateClusterChart(result, h.width, h.height)
	optionsJSON, err := json.Marshal(chart.JSON())
	if err != nil {
		h.log.Error("Failed to encode chart options", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to build chart")
		return
	}

	h.render(c, "Result "+result.PublicID, views.ResultChart(string(optionsJSON), c.GetString(CSPNonceKey)))
}

// load fetches the result named in the path. Results of other participants
// are reported as missing.
func (h *ResultsHandler) load(c *gin.Context) (*models.ClusteringResult, bool) {
	result, err := repository.GetClusteringResult(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrResultNotFound) ||
		(err == nil && result.ParticipantID != c.GetString(ParticipantIDKey)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Result not found"})
		return nil, false
	}
	if err != nil {
		h.log.Error("Failed to load clustering result", zap.Error(err), zap.String("result_id", c.Param("id")))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load result"})
		return nil, false
	}
	return result, true
}

func (h *ResultsHandler) render(c *gin.Context, title string, component templ.Component) {
	if c.GetHeader("HX-Request") == "true" {
		component.Render(c.Request.Context(), c.Writer)
		return
	}
	err := views.Layout(title, c.GetString(CSRFTokenKey), c.GetString(CSPNonceKey)).Render(
		templ.WithChildren(c.Request.Context(), component),
		c.Writer,
	)
	if err != nil {
		h.log.Error("Failed to render page", zap.Error(err))
	}
}

func generateClusterChart(result *models.ClusteringResult, width, height int) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Clusters",
			Subtitle: fmt.Sprintf("%d clusters, %d tries", result.ClusterCount, result.NumberOfTries),
		}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: 0, Max: width}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: 0, Max: height}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	members := make([][]opts.ScatterData, result.ClusterCount)
	for _, m := range result.Memberships {
		if !m.Member || m.ClusterIndex >= len(members) {
			continue
		}
		members[m.ClusterIndex] = append(members[m.ClusterIndex], opts.ScatterData{
			Value:      []interface{}{m.X, m.Y},
			SymbolSize: 10,
		})
	}

	edges := make([][]opts.ScatterData, result.ClusterCount)
	for _, e := range result.EdgePoints {
		if e.ClusterIndex >= len(edges) {
			continue
		}
		edges[e.ClusterIndex] = append(edges[e.ClusterIndex], opts.ScatterData{
			Value:      []interface{}{e.X, e.Y},
			SymbolSize: 2,
		})
	}

	for i := range members {
		name := fmt.Sprintf("Cluster %d", i+1)
		scatter.AddSeries(name, members[i])
		scatter.AddSeries(name+" edge", edges[i])
	}
	return scatter
}
