package store

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertSchedule creates a new recurring schedule, pre-approved at
// creation time.
func (s *Store) InsertSchedule(scheduleID, docID string, intervalHours float64, innerText string) (*Schedule, error) {
	sched := Schedule{
		ScheduleID:       scheduleID,
		DocID:            docID,
		IntervalHours:    intervalHours,
		InnerCommandText: innerText,
		NextRunAt:        s.now().Add(time.Duration(intervalHours * float64(time.Hour))),
		Status:           ScheduleActive,
	}
	if err := s.db.Create(&sched).Error; err != nil {
		return nil, err
	}
	return &sched, nil
}

// ListDueSchedules returns every ACTIVE schedule whose next_run_at has
// passed, for the Scheduler's tick.
func (s *Store) ListDueSchedules(docID string) ([]Schedule, error) {
	var scheds []Schedule
	err := s.db.Where("doc_id = ? AND status = ? AND next_run_at <= ?", docID, ScheduleActive, s.now()).
		Find(&scheds).Error
	if err != nil {
		return nil, err
	}
	return scheds, nil
}

// AdvanceSchedule bumps total_runs/last_run_at/next_run_at by exactly one
// interval — missed ticks are never batched (§4.G).
func (s *Store) AdvanceSchedule(scheduleID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var sched Schedule
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sched, "schedule_id = ?", scheduleID).Error; err != nil {
			return err
		}
		now := s.now()
		next := now.Add(time.Duration(sched.IntervalHours * float64(time.Hour)))
		return tx.Model(&Schedule{}).Where("schedule_id = ?", scheduleID).Updates(map[string]any{
			"total_runs":  sched.TotalRuns + 1,
			"last_run_at": now,
			"next_run_at": next,
		}).Error
	})
}

// CancelSchedule marks a schedule CANCELLED, either on explicit
// CANCEL_SCHEDULE or when its inner command no longer parses.
func (s *Store) CancelSchedule(scheduleID string) error {
	return s.db.Model(&Schedule{}).Where("schedule_id = ?", scheduleID).
		Update("status", ScheduleCancelled).Error
}

// GetSchedule loads one schedule by id.
func (s *Store) GetSchedule(scheduleID string) (*Schedule, error) {
	var sched Schedule
	if err := s.db.First(&sched, "schedule_id = ?", scheduleID).Error; err != nil {
		return nil, err
	}
	return &sched, nil
}

// ListSchedules returns every schedule for a document.
func (s *Store) ListSchedules(docID string) ([]Schedule, error) {
	var scheds []Schedule
	if err := s.db.Where("doc_id = ?", docID).Find(&scheds).Error; err != nil {
		return nil, err
	}
	return scheds, nil
}
