package features

import (
	"math"
	"time"
)

// Time feature names.
const (
	HourSin     = "hour_sin"
	HourCos     = "hour_cos"
	DowSin      = "dow_sin"
	DowCos      = "dow_cos"
	IsWeekend   = "is_weekend"
	IsPeakHour  = "is_peak_hour"
	IsStrongDay = "is_strong_day"
)

// TimeFeatureNames lists the calendar features in emission order.
var TimeFeatureNames = []string{HourSin, HourCos, DowSin, DowCos, IsWeekend, IsPeakHour, IsStrongDay}

// TimeFeatures encodes hour-of-day and day-of-week cyclically, plus a few
// calendar flags. Uses UTC.
func TimeFeatures(t time.Time) map[string]float64 {
	t = t.UTC()
	hour := float64(t.Hour()) + float64(t.Minute())/60
	dow := float64(t.Weekday())
	wd := t.Weekday()
	return map[string]float64{
		HourSin:     math.Sin(2 * math.Pi * hour / 24),
		HourCos:     math.Cos(2 * math.Pi * hour / 24),
		DowSin:      math.Sin(2 * math.Pi * dow / 7),
		DowCos:      math.Cos(2 * math.Pi * dow / 7),
		IsWeekend:   flag(wd == time.Saturday || wd == time.Sunday),
		IsPeakHour:  flag(t.Hour() >= 15 && t.Hour() <= 17),
		IsStrongDay: flag(wd == time.Monday || wd == time.Wednesday),
	}
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// CandleReturn is ln(close/open), 0 when either price is not positive.
func CandleReturn(open, close float64) float64 {
	if open <= 0 || close <= 0 {
		return 0
	}
	return math.Log(close / open)
}
