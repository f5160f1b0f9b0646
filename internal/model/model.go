// Package model holds the gorm tables of the state database.
package model

import (
	"time"

	"gorm.io/datatypes"
)

// DatabaseModels lists every table, in migration order.
var DatabaseModels = []any{
	&StateEntry{},
	&FlushRecord{},
}

// Keys of the scalar manager state.
const (
	KeyLastEditedCategory     = "last_edited_category"
	KeyLastEditedCategoryFile = "last_edited_category_file"
	KeyLastColor              = "last_color"
	KeyLastSynchronization    = "last_synchronization"
)

// StateEntry is one key of the persisted manager state
type StateEntry struct {
	Key       string         `json:"key" gorm:"primaryKey;size:64"`
	Value     datatypes.JSON `json:"value"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (*StateEntry) TableName() string {
	return "state_entries"
}

// FlushRecord is the model for edit session flush statistics
type FlushRecord struct {
	ID            uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time          time.Time `json:"time" gorm:"index:idx_flush_time"`
	DurationMs    float64   `json:"durationMs"`
	CreatedMarks  int       `json:"createdMarks"`
	UpdatedMarks  int       `json:"updatedMarks"`
	RemovedMarks  int       `json:"removedMarks"`
	CreatedLines  int       `json:"createdLines"`
	RemovedLines  int       `json:"removedLines"`
	DirtyGroups   int       `json:"dirtyGroups"`
	RemovedGroups int       `json:"removedGroups"`
	SavedFiles    int       `json:"savedFiles"`
	FailedSaves   int       `json:"failedSaves"`
}

func (*FlushRecord) TableName() string {
	return "flush_records"
}
