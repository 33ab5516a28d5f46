package store

import "gorm.io/gorm/clause"

// onConflictUpdate builds an ON CONFLICT(...) DO UPDATE clause over the
// given conflict columns, updating only the named columns — the upsert
// idiom gorm recommends in place of a manual get-then-create/update.
func onConflictUpdate(conflictColumns []string, updateColumns []string) clause.Expression {
	cols := make([]clause.Column, len(conflictColumns))
	for i, c := range conflictColumns {
		cols[i] = clause.Column{Name: c}
	}
	return clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(updateColumns),
	}
}
