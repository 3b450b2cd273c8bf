package store

import (
	"io"

	"github.com/gocarina/gocsv"

	"bracket-trader/internal/models"
)

// ExportTrades writes trades as CSV with a header row.
func ExportTrades(w io.Writer, trades []models.Trade) error {
	if trades == nil {
		trades = []models.Trade{}
	}
	return gocsv.Marshal(&trades, w)
}

// ExportDailyPnL writes PnL rows as CSV with a header row.
func ExportDailyPnL(w io.Writer, rows []models.DailyPnL) error {
	if rows == nil {
		rows = []models.DailyPnL{}
	}
	return gocsv.Marshal(&rows, w)
}
