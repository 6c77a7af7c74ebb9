package study

import (
	"time"

	"github.com/google/uuid"
)

type StudyMaterial struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Title          string           `gorm:"column:title;not null" json:"title"`
	Summary        string           `gorm:"column:summary" json:"summary"`
	Mode           Mode             `gorm:"column:mode;not null" json:"mode"`
	ExtractedText  string           `gorm:"column:extracted_text" json:"extractedText"`
	SourceName     string           `gorm:"column:source_name" json:"sourceName,omitempty"`
	WasParaphrased bool             `gorm:"column:was_paraphrased;not null;default:false" json:"wasParaphrased"`
	Preview        *MaterialPreview `gorm:"foreignKey:MaterialID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Sessions       []QuizSession    `gorm:"foreignKey:MaterialID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt      time.Time        `gorm:"column:created_at;not null;index" json:"createdAt"`
	LastViewedAt   *time.Time       `gorm:"column:last_viewed_at" json:"lastViewedAt,omitempty"`
}

func (StudyMaterial) TableName() string { return "study_material" }

// PreviewImage returns the stored preview bytes, or nil.
func (m *StudyMaterial) PreviewImage() []byte {
	if m == nil || m.Preview == nil {
		return nil
	}
	return m.Preview.Data
}

// MaterialPreview holds the display image of a material, stored apart from the listing row.
type MaterialPreview struct {
	MaterialID uuid.UUID `gorm:"type:uuid;primaryKey" json:"materialId"`
	MimeType   string    `gorm:"column:mime_type;not null" json:"mimeType"`
	Data       []byte    `gorm:"column:data" json:"-"`
}

func (MaterialPreview) TableName() string { return "study_material_preview" }

// NewMaterialID returns a time-ordered id.
func NewMaterialID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
