package application

import (
	"math"
	"sort"
	"time"

	"occupancy-forecast/internal/forecasting/domain/features"
)

// TreeFeatureNames are the gradient-boosted-tree feature columns, in training order.
var TreeFeatureNames = []string{
	"weekday_0", "weekday_1", "weekday_2", "weekday_3", "weekday_4", "weekday_5", "weekday_6",
	"month_sin", "month_cos", "day", "year", "is_holiday",
}

// treeHolidays is the holiday list the tree models were trained with. It is fixed
// and independent of binding rules and the public holiday calendar.
var treeHolidays = map[string]struct{}{
	"2024-01-01": {}, "2024-02-12": {}, "2024-02-13": {}, "2024-03-29": {}, "2024-04-21": {},
	"2024-05-01": {}, "2024-05-30": {}, "2024-09-07": {}, "2024-10-12": {}, "2024-11-02": {},
	"2024-11-15": {}, "2024-11-20": {}, "2024-12-25": {},
	"2025-01-01": {}, "2025-03-03": {}, "2025-03-04": {}, "2025-04-18": {}, "2025-04-21": {},
	"2025-05-01": {}, "2025-06-19": {}, "2025-09-07": {}, "2025-10-12": {}, "2025-11-02": {},
	"2025-11-15": {}, "2025-11-20": {}, "2025-12-25": {},
	"2026-01-01": {}, "2026-02-16": {}, "2026-02-17": {}, "2026-04-03": {}, "2026-04-21": {},
	"2026-05-01": {}, "2026-06-04": {}, "2026-09-07": {}, "2026-10-12": {}, "2026-11-02": {},
	"2026-11-15": {}, "2026-11-20": {}, "2026-12-25": {},
}

// TreeFeatureVector builds the fixed feature matrix of the tree family.
func TreeFeatureVector(horizon []time.Time) (*features.Table, error) {
	cols := make(map[string][]float64, len(TreeFeatureNames))
	for _, name := range TreeFeatureNames {
		cols[name] = make([]float64, len(horizon))
	}
	for i, at := range horizon {
		cols[TreeFeatureNames[features.DayOfWeek(at)]][i] = 1
		angle := 2 * math.Pi * float64(at.Month()) / 12
		cols["month_sin"][i] = math.Sin(angle)
		cols["month_cos"][i] = math.Cos(angle)
		cols["day"][i] = float64(at.Day())
		cols["year"][i] = float64(at.Year())
		if _, ok := treeHolidays[at.Format("2006-01-02")]; ok {
			cols["is_holiday"][i] = 1
		}
	}
	table := features.NewTable(horizon)
	for _, name := range TreeFeatureNames {
		if err := table.Set(name, cols[name]); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
