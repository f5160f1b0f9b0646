// Package gormstorage persists the manager state and flush statistics
// through GORM. It works on any dialect opened by the database package.
package gormstorage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OCAP2/bookmarks/internal/model"
	"github.com/OCAP2/bookmarks/pkg/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements bookmarks.StateStore on top of a gorm connection.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a store using db. The schema must already be migrated.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// LoadState reads every known key, keeping defaults for missing ones.
func (s *Store) LoadState() (core.State, error) {
	st := core.DefaultState()

	var entries []model.StateEntry
	if err := s.db.Find(&entries).Error; err != nil {
		return st, fmt.Errorf("load state: %w", err)
	}

	for _, e := range entries {
		var err error
		switch e.Key {
		case model.KeyLastEditedCategory:
			err = json.Unmarshal(e.Value, &st.LastEditedCategory)
		case model.KeyLastEditedCategoryFile:
			err = json.Unmarshal(e.Value, &st.LastEditedCategoryFile)
		case model.KeyLastColor:
			err = json.Unmarshal(e.Value, &st.LastColor)
		case model.KeyLastSynchronization:
			err = json.Unmarshal(e.Value, &st.LastSynchronization)
		default:
			continue
		}
		if err != nil {
			return core.DefaultState(), fmt.Errorf("decode state key %s: %w", e.Key, err)
		}
	}
	return st, nil
}

// SaveState upserts all keys in one transaction.
func (s *Store) SaveState(st core.State) error {
	values := map[string]any{
		model.KeyLastEditedCategory:     st.LastEditedCategory,
		model.KeyLastEditedCategoryFile: st.LastEditedCategoryFile,
		model.KeyLastColor:              st.LastColor,
		model.KeyLastSynchronization:    st.LastSynchronization,
	}

	now := s.now()
	entries := make([]model.StateEntry, 0, len(values))
	for key, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode state key %s: %w", key, err)
		}
		entries = append(entries, model.StateEntry{Key: key, Value: datatypes.JSON(raw), UpdatedAt: now})
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&entries).Error
	})
}

// RecordFlush stores one flush summary.
func (s *Store) RecordFlush(stats core.FlushStats) error {
	if s.db == nil {
		return errors.New("no database")
	}
	rec := model.FlushRecord{
		Time:          stats.At,
		DurationMs:    float64(stats.Duration) / float64(time.Millisecond),
		CreatedMarks:  stats.CreatedMarks,
		UpdatedMarks:  stats.UpdatedMarks,
		RemovedMarks:  stats.RemovedMarks,
		CreatedLines:  stats.CreatedLines,
		RemovedLines:  stats.RemovedLines,
		DirtyGroups:   stats.DirtyGroups,
		RemovedGroups: stats.RemovedGroups,
		SavedFiles:    stats.SavedFiles,
		FailedSaves:   stats.FailedSaves,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("record flush: %w", err)
	}
	return nil
}

// RecentFlushes returns up to limit records, newest first.
func (s *Store) RecentFlushes(limit int) ([]model.FlushRecord, error) {
	var recs []model.FlushRecord
	err := s.db.Order("time desc").Order("id desc").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("recent flushes: %w", err)
	}
	return recs, nil
}
