package features

import (
	"math"
	"time"
)

// Synthesized calendar covariates.
const (
	ColMonth       = "month"
	ColDay         = "day"
	ColWeekOfYear  = "week_of_year"
	ColIsWeekend   = "is_weekend"
	ColIsLunchHour = "is_lunch_hour"
	ColHourSin     = "hour_sin"
	ColHourCos     = "hour_cos"
	ColDowSin      = "dayofweek_sin"
	ColDowCos      = "dayofweek_cos"
	ColMonthSin    = "month_sin"
	ColMonthCos    = "month_cos"
)

// WeekdayColumns are the one-hot day-of-week indicators, Monday first.
var WeekdayColumns = [7]string{
	"DiaSemana_Segunda",
	"DiaSemana_Terca",
	"DiaSemana_Quarta",
	"DiaSemana_Quinta",
	"DiaSemana_Sexta",
	"DiaSemana_Sabado",
	"DiaSemana_Domingo",
}

// DayOfWeek returns 0 for Monday through 6 for Sunday.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Synthesize derives calendar covariates from the timestamps alone.
// The result is deterministic and an empty index yields an empty table.
func Synthesize(index []time.Time) *Table {
	n := len(index)
	cols := map[string][]float64{}
	names := []string{
		ColMonth, ColDay, ColWeekOfYear, ColIsWeekend, ColIsLunchHour,
		ColHourSin, ColHourCos, ColDowSin, ColDowCos, ColMonthSin, ColMonthCos,
	}
	names = append(names, WeekdayColumns[:]...)
	for _, name := range names {
		cols[name] = make([]float64, n)
	}

	for i, at := range index {
		dow := DayOfWeek(at)
		hour := at.Hour()
		month := int(at.Month())
		_, week := at.ISOWeek()

		cols[ColMonth][i] = float64(month)
		cols[ColDay][i] = float64(at.Day())
		cols[ColWeekOfYear][i] = float64(week)
		cols[ColIsWeekend][i] = boolToFloat(dow >= 5)
		cols[ColIsLunchHour][i] = boolToFloat(hour >= 12 && hour <= 14)
		cols[ColHourSin][i], cols[ColHourCos][i] = cyclical(float64(hour), 24)
		cols[ColDowSin][i], cols[ColDowCos][i] = cyclical(float64(dow), 7)
		cols[ColMonthSin][i], cols[ColMonthCos][i] = cyclical(float64(month), 12)
		cols[WeekdayColumns[dow]][i] = 1
	}

	table := NewTable(index)
	for _, name := range names {
		_ = table.Set(name, cols[name])
	}
	return table
}

func cyclical(value, period float64) (float64, float64) {
	angle := 2 * math.Pi * value / period
	return math.Sin(angle), math.Cos(angle)
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
