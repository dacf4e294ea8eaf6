package domain

import "time"

// WinnerFingerprint is a repeatable profitable vehicle shape for an account,
// aggregated offline from completed sales. YearMin <= YearMax when both are
// set and TimesSold >= 1.
type WinnerFingerprint struct {
	AccountID     string
	Make          string
	Model         string
	Variant       string
	Drivetrain    Drivetrain
	YearMin       *int
	YearMax       *int
	AvgProfit     float64
	TotalProfit   float64
	MedianProfit  *float64
	AvgKm         *float64
	MedianKm      *float64
	TimesSold     int
	LastSalePrice *float64
	LastSaleDate  *time.Time
	Rank          int

	MedianSalePrice   *float64
	WinRate           *float64
	MedianDaysToClear *float64
}

// ReferenceKm is the km figure listings are compared against: the median
// when known, the average otherwise.
func (f WinnerFingerprint) ReferenceKm() *float64 {
	if f.MedianKm != nil {
		return f.MedianKm
	}
	return f.AvgKm
}

// ProfitFigure returns the median profit when aggregated, else the average.
func (f WinnerFingerprint) ProfitFigure() float64 {
	if f.MedianProfit != nil {
		return *f.MedianProfit
	}
	return f.AvgProfit
}
