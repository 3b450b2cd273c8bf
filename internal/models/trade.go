package models

import "time"

// Trade is a journal record of a bracket placement.
type Trade struct {
	ID         string    `csv:"id"`
	GroupID    string    `csv:"group_id"`
	Timestamp  time.Time `csv:"timestamp"`
	Symbol     string    `csv:"symbol"`
	Side       OrderSide `csv:"side"`
	Quantity   int       `csv:"quantity"`
	EntryPrice float64   `csv:"entry_price"`
	StopPrice  float64   `csv:"stop_price"`
	Target     float64   `csv:"target_price"`
	SignalPx   float64   `csv:"signal_price"`
	State      string    `csv:"state"`
	Reason     string    `csv:"reason"`
	OrderIDs   string    `csv:"order_ids"`
	IsPaper    bool      `csv:"is_paper"`
}

// BracketEvent records a state change of a bracket group.
type BracketEvent struct {
	GroupID   string
	Timestamp time.Time
	Symbol    string
	Event     string
	Role      LegRole
	OrderID   string
	Detail    string
}

// DailyPnL is an end-of-day profit and loss row for one symbol.
type DailyPnL struct {
	Date     string  `csv:"date"`
	Symbol   string  `csv:"symbol"`
	Quantity int     `csv:"quantity"`
	PnL      float64 `csv:"pnl"`
}
