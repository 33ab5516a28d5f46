package store

// InsertConditionalOrder records a new STOP_LOSS/TAKE_PROFIT rule in the
// ACTIVE state.
func (s *Store) InsertConditionalOrder(orderID, docID string, kind ConditionalOrderKind, base, quote string, qty, trigger float64) (*ConditionalOrder, error) {
	order := ConditionalOrder{
		OrderID:      orderID,
		DocID:        docID,
		Kind:         kind,
		Base:         base,
		Quote:        quote,
		TriggerPrice: trigger,
		Qty:          qty,
		Status:       ConditionalActive,
	}
	if err := s.db.Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListActiveConditionalOrders returns every ACTIVE conditional order for a
// document, for the Price Oracle's trigger scan.
func (s *Store) ListActiveConditionalOrders(docID string) ([]ConditionalOrder, error) {
	var orders []ConditionalOrder
	err := s.db.Where("doc_id = ? AND status = ?", docID, ConditionalActive).Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// TriggerConditionalOrder marks an order TRIGGERED and records the spawned
// command id. Triggered orders are final.
func (s *Store) TriggerConditionalOrder(orderID, spawnedCmdID string) error {
	return s.db.Model(&ConditionalOrder{}).Where("order_id = ? AND status = ?", orderID, ConditionalActive).
		Updates(map[string]any{"status": ConditionalTriggered, "triggered_cmd_id": spawnedCmdID}).Error
}

// CancelConditionalOrder marks an order CANCELLED via explicit CANCEL.
func (s *Store) CancelConditionalOrder(orderID string) error {
	return s.db.Model(&ConditionalOrder{}).Where("order_id = ?", orderID).
		Update("status", ConditionalCancelled).Error
}
