package features

import (
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ApplyRules overlays named date-list rules on the table. Every rule name becomes a
// column (zero when new); rows whose calendar date is listed are set to 1.
// Rule values that are not date lists are accepted and leave the column untouched.
func ApplyRules(table *Table, rules map[string]any) {
	if table == nil || len(rules) == 0 {
		return
	}
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		table.AddZeros(name)
		dates, ok := dateList(rules[name])
		if !ok || len(dates) == 0 {
			continue
		}
		for i, at := range table.index {
			if _, hit := dates[at.Format(dateLayout)]; hit {
				table.data[name][i] = 1
			}
		}
	}
}

func dateList(value any) (map[string]struct{}, bool) {
	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case []string:
		items = make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
	case []time.Time:
		items = make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
	default:
		return nil, false
	}

	dates := make(map[string]struct{}, len(items))
	for _, item := range items {
		switch d := item.(type) {
		case string:
			if day, ok := parseRuleDate(d); ok {
				dates[day] = struct{}{}
			}
		case time.Time:
			dates[d.Format(dateLayout)] = struct{}{}
		}
	}
	return dates, true
}

func parseRuleDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if len(value) < len(dateLayout) {
		return "", false
	}
	day, err := time.Parse(dateLayout, value[:len(dateLayout)])
	if err != nil {
		return "", false
	}
	return day.Format(dateLayout), true
}
