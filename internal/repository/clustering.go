// internal/repository/clustering.go
package repository

import (
	"context"
	"errors"
	"time"

	"lasso-go/internal/database"
	"lasso-go/internal/models"

	"gorm.io/gorm"
)

var ErrResultNotFound = errors.New("clustering result not found")

// SaveClusteringResultTx saves the summary, its edge points and memberships in a single transaction.
func SaveClusteringResultTx(ctx context.Context, summary *models.ClusteringResult) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		edges := summary.EdgePoints
		memberships := summary.Memberships

		// Insert the summary alone first so we know its ID.
		if err := tx.Omit("EdgePoints", "Memberships").Create(summary).Error; err != nil {
			return err
		}

		for i := range edges {
			edges[i].ResultID = summary.ID
		}
		for i := range memberships {
			memberships[i].ResultID = summary.ID
		}

		if len(edges) > 0 {
			if err := tx.CreateInBatches(edges, 500).Error; err != nil {
				return err
			}
		}
		if len(memberships) > 0 {
			if err := tx.CreateInBatches(memberships, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetClusteringResult loads one result by its public ID, including its rows.
func GetClusteringResult(ctx context.Context, publicID string) (*models.ClusteringResult, error) {
	var result models.ClusteringResult
	err := database.DB.WithContext(ctx).
		Preload("EdgePoints", func(db *gorm.DB) *gorm.DB { return db.Order("cluster_index, seq") }).
		Preload("Memberships", func(db *gorm.DB) *gorm.DB { return db.Order("cluster_index, point_index") }).
		First(&result, "public_id = ?", publicID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListClusteringResults returns a participant's results, newest first, without their rows.
func ListClusteringResults(ctx context.Context, participantID string) ([]models.ClusteringResult, error) {
	var results []models.ClusteringResult
	err := database.DB.WithContext(ctx).
		Omit("RawData").
		Where("participant_id = ?", participantID).
		Order("created_at DESC, id DESC").
		Find(&results).Error
	return results, err
}

// DeleteClusteringResultsBefore removes results created before cutoff along
// with their rows, returning how many results were removed.
func DeleteClusteringResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.ClusteringResult{}).Where("created_at < ?", cutoff).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("result_id IN ?", ids).Delete(&models.ClusterEdgePoint{}).Error; err != nil {
			return err
		}
		if err := tx.Where("result_id IN ?", ids).Delete(&models.ClusterMembership{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.ClusteringResult{}, ids)
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}
