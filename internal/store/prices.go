package store

// UpsertPrice overwrites the single row for a pair on each oracle tick.
func (s *Store) UpsertPrice(pair string, mid, bid, ask float64, source string) error {
	point := PricePoint{Pair: pair, Mid: mid, Bid: bid, Ask: ask, Source: source, At: s.now()}
	return s.db.Clauses(onConflictUpdate(
		[]string{"pair"},
		[]string{"mid", "bid", "ask", "source", "at"},
	)).Create(&point).Error
}

// GetPrice loads the last-published price for a pair, or
// gorm.ErrRecordNotFound if the oracle has never succeeded.
func (s *Store) GetPrice(pair string) (*PricePoint, error) {
	var point PricePoint
	if err := s.db.First(&point, "pair = ?", pair).Error; err != nil {
		return nil, err
	}
	return &point, nil
}
