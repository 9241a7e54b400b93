package models

import "time"

// Photo set values. A photo is PENDING until the analysis worker writes its
// scores; from then on it is BLURRY or CLEAN according to IsBlurry, unless the
// user promotes it to FINAL. It never returns to PENDING.
const (
	SetPending = "PENDING"
	SetBlurry  = "BLURRY"
	SetClean   = "CLEAN"
	SetFinal   = "FINAL"
)

// Photo is one imported image belonging to exactly one project.
// Score columns stay NULL until the analysis worker has run; AnalyzedAt is the
// marker the worker uses to never process a photo twice, which is also what
// keeps IsBlurry immutable once set.
type Photo struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ProjectID string    `gorm:"index;not null;uniqueIndex:idx_project_file" json:"projectId"`
	Project   Project   `gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	FileName  string    `gorm:"size:255;not null;uniqueIndex:idx_project_file" json:"filename"`
	StorePath string    `gorm:"column:store_path;size:512" json:"storePath"`

	ContentType string     `gorm:"size:128" json:"contentType"`
	SizeBytes   int64      `gorm:"not null;default:0" json:"sizeBytes"`
	CapturedAt  *time.Time `json:"capturedAt"`

	// Analysis results, written once by the worker.
	BlurScore     *float64   `json:"blurScore"`
	IsBlurry      bool       `gorm:"default:false" json:"isBlurry"`
	QualityScore  *float64   `json:"qualityScore"`
	ExposureScore *float64   `json:"exposureScore"`
	HasFaces      bool       `gorm:"default:false" json:"hasFaces"`
	FaceCount     int        `gorm:"default:0" json:"faceCount"`
	AnalyzedAt    *time.Time `gorm:"index" json:"analyzedAt"`

	// Workflow state. IsSelected is true iff PhotoSet == FINAL.
	PhotoSet   string `gorm:"size:16;not null;default:PENDING;index" json:"photoSet"`
	IsSelected bool   `gorm:"default:false;index" json:"isSelected"`

	// Mark photo as failed for analysis (do not delete record so front-end/admin can review)
	Failed       bool   `gorm:"default:false;index" json:"failed"`
	FailedReason string `gorm:"size:255" json:"failedReason,omitempty"`
}
