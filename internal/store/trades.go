package store

// InsertTrade appends a fill record. Trades are never updated or deleted.
func (s *Store) InsertTrade(tradeID, docID, cmdID string, side TradeSide, qty, price, fee float64, txID string) (*Trade, error) {
	trade := Trade{
		TradeID:  tradeID,
		DocID:    docID,
		CmdID:    cmdID,
		Side:     side,
		Qty:      qty,
		Price:    price,
		Notional: qty * price,
		Fee:      fee,
		TxID:     txID,
		At:       s.now(),
	}
	if err := s.db.Create(&trade).Error; err != nil {
		return nil, err
	}
	return &trade, nil
}

// ListTrades returns every trade for a document, oldest first.
func (s *Store) ListTrades(docID string) ([]Trade, error) {
	var trades []Trade
	if err := s.db.Where("doc_id = ?", docID).Order("at asc").Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}
