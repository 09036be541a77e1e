package features

import (
	"time"

	"github.com/rickar/cal/v2"
)

// ColHolidayOrBridge flags public holidays and the bridge days that join them to a weekend.
const ColHolidayOrBridge = "IsHolidayOrBridge"

// brazilHolidays are the national public holidays.
var brazilHolidays = []*cal.Holiday{
	{Name: "Confraternização Universal", Type: cal.ObservancePublic, Month: time.January, Day: 1, Func: cal.CalcDayOfMonth},
	{Name: "Sexta-feira Santa", Type: cal.ObservancePublic, Offset: -2, Func: cal.CalcEasterOffset},
	{Name: "Tiradentes", Type: cal.ObservancePublic, Month: time.April, Day: 21, Func: cal.CalcDayOfMonth},
	{Name: "Dia do Trabalhador", Type: cal.ObservancePublic, Month: time.May, Day: 1, Func: cal.CalcDayOfMonth},
	{Name: "Independência do Brasil", Type: cal.ObservancePublic, Month: time.September, Day: 7, Func: cal.CalcDayOfMonth},
	{Name: "Nossa Senhora Aparecida", Type: cal.ObservancePublic, Month: time.October, Day: 12, Func: cal.CalcDayOfMonth},
	{Name: "Finados", Type: cal.ObservancePublic, Month: time.November, Day: 2, Func: cal.CalcDayOfMonth},
	{Name: "Proclamação da República", Type: cal.ObservancePublic, Month: time.November, Day: 15, Func: cal.CalcDayOfMonth},
	{Name: "Dia Nacional de Zumbi e da Consciência Negra", Type: cal.ObservancePublic, Month: time.November, Day: 20, Func: cal.CalcDayOfMonth, StartYear: 2024},
	{Name: "Natal", Type: cal.ObservancePublic, Month: time.December, Day: 25, Func: cal.CalcDayOfMonth},
}

// HolidayCalendar answers holiday and bridge-day questions for calendar dates.
type HolidayCalendar struct {
	holidays []*cal.Holiday
}

// NewBrazilHolidayCalendar returns the Brazilian national calendar.
func NewBrazilHolidayCalendar() *HolidayCalendar {
	return &HolidayCalendar{holidays: brazilHolidays}
}

// Dates returns the holiday set (YYYY-MM-DD) for every year in [fromYear, toYear].
func (c *HolidayCalendar) Dates(fromYear, toYear int) map[string]struct{} {
	out := make(map[string]struct{})
	for year := fromYear; year <= toYear; year++ {
		for _, h := range c.holidays {
			actual, _ := h.Calc(year)
			if actual.IsZero() {
				continue
			}
			out[actual.Format(dateLayout)] = struct{}{}
		}
	}
	return out
}

// BridgeDates extends a holiday set with the weekday between a Tuesday or Thursday
// holiday and the adjoining weekend.
func BridgeDates(holidays map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(holidays))
	for day := range holidays {
		out[day] = struct{}{}
		t, err := time.Parse(dateLayout, day)
		if err != nil {
			continue
		}
		switch t.Weekday() {
		case time.Tuesday:
			out[t.AddDate(0, 0, -1).Format(dateLayout)] = struct{}{}
		case time.Thursday:
			out[t.AddDate(0, 0, 1).Format(dateLayout)] = struct{}{}
		}
	}
	return out
}

// AddHolidayOrBridge sets ColHolidayOrBridge for the years the table spans.
func (c *HolidayCalendar) AddHolidayOrBridge(table *Table) {
	values := make([]float64, table.Len())
	if table.Len() > 0 {
		first, last := table.index[0].Year(), table.index[table.Len()-1].Year()
		if first > last {
			first, last = last, first
		}
		days := BridgeDates(c.Dates(first, last))
		for i, at := range table.index {
			if _, ok := days[at.Format(dateLayout)]; ok {
				values[i] = 1
			}
		}
	}
	_ = table.Set(ColHolidayOrBridge, values)
}
