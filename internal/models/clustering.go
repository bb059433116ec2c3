package models

import (
	"encoding/json"
	"time"
)

// ClusteringResult holds the summary of one completed clustering trial.
type ClusteringResult struct {
	ID                 uint   `gorm:"primaryKey"`
	PublicID           string `gorm:"uniqueIndex;size:36"`
	ParticipantID      string `gorm:"index;size:36"`
	NumberOfTries      int
	StartDateTime      int64
	StartTimestamp     float64
	EndTimestamp       float64
	DurationMs         float64
	StimulusSize       int
	ClusterCount       int
	EdgePointCount     int
	OverlapPoints      int
	MeanStrokeDuration float64
	MeanStrokeLength   float64
	MeanVelocity       *float64
	VelocityVariation  *float64
	RawData            json.RawMessage `gorm:"type:jsonb"`
	CreatedAt          time.Time

	EdgePoints  []ClusterEdgePoint  `gorm:"foreignKey:ResultID;constraint:OnDelete:CASCADE"`
	Memberships []ClusterMembership `gorm:"foreignKey:ResultID;constraint:OnDelete:CASCADE"`
}

// ClusterEdgePoint is one boundary sample of one cluster's stroke.
type ClusterEdgePoint struct {
	ID           uint `gorm:"primaryKey"`
	ResultID     uint `gorm:"index"`
	ClusterIndex int
	Seq          int
	X            float64
	Y            float64
	Timestamp    float64
}

// ClusterMembership records whether one stimulus point fell in one cluster.
type ClusterMembership struct {
	ID           uint `gorm:"primaryKey"`
	ResultID     uint `gorm:"index"`
	ClusterIndex int
	PointIndex   int
	X            float64
	Y            float64
	Member       bool
}

// ClusteringExport is the payload handed to the host page, matching what the
// demo has always produced: the serialized result under clusteringData.
type ClusteringExport struct {
	ClusteringData string `json:"clusteringData"`
}
