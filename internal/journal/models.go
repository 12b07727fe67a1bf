package journal

import "time"

// Run is one recorded border removal run
type Run struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Input      string    `gorm:"not null;index" json:"input"`
	Output     string    `json:"output"`
	Strategy   string    `gorm:"size:16" json:"strategy"`
	Scan       string    `gorm:"size:16" json:"scan"`
	State      string    `gorm:"size:16;index" json:"state"`
	Detected   bool      `json:"detected"`
	Filter     string    `json:"filter,omitempty"`
	Dimensions string    `json:"dimensions,omitempty"`
	Margins    string    `json:"margins,omitempty"` // top x bottom x left x right
	Clamped    bool      `json:"clamped"`
	DryRun     bool      `json:"dry_run"`
	ErrorType  string    `gorm:"size:16" json:"error_type,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `gorm:"index" json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "runs"
}
