package datastore

import (
	"time"
)

// Discovery is one significant image persisted by the agent. The composite
// unique index over the full coordinate makes re-discovering the same
// address a no-op.
type Discovery struct {
	ID uint `gorm:"primaryKey"`

	// Archive coordinates
	LocationKey string `gorm:"index:idx_discoveries_coords,unique;type:varchar(40)"`
	Wall        string `gorm:"index:idx_discoveries_coords,unique;type:varchar(1)"`
	Shelf       int    `gorm:"index:idx_discoveries_coords,unique"`
	Volume      int    `gorm:"index:idx_discoveries_coords,unique"`
	Page        int    `gorm:"index:idx_discoveries_coords,unique"`

	// Scoring outcome
	Score         float64 `gorm:"index:idx_discoveries_score"`
	Reason        string
	Entropy       float64
	NoiseScore    float64
	SemanticScore float64

	// Artifacts
	ImagePath    string
	SourceURL    string
	AnalysisJSON string `gorm:"type:text"`

	DiscoveredAt time.Time `gorm:"index:idx_discoveries_discovered_at"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Slug renders the discovery's coordinates in archive query form.
func (d *Discovery) Slug() string {
	return renderSlug(d.LocationKey, d.Wall, d.Shelf, d.Volume, d.Page)
}
