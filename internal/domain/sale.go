package domain

import "time"

// Sale is a completed sale from the account's sales history.
type Sale struct {
	ID          int64
	AccountID   string
	Make        string
	Model       string
	Variant     string
	Drivetrain  Drivetrain
	Year        *int
	Km          *int
	BuyPrice    *float64
	SalePrice   *float64
	DaysToClear *int
	SoldAt      time.Time
}

// Profit returns SalePrice - BuyPrice when both are known.
func (s Sale) Profit() (float64, bool) {
	if s.SalePrice == nil || s.BuyPrice == nil {
		return 0, false
	}
	return *s.SalePrice - *s.BuyPrice, true
}

// BestSale is the single highest-profit historical sale for a make/model
// pair, used to anchor exit value.
type BestSale struct {
	Make        string
	Model       string
	Variant     string
	Year        *int
	Km          *int
	SalePrice   float64
	Profit      float64
	DaysToClear *int
	SoldAt      time.Time
}
