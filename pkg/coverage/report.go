package coverage

import (
	"encoding/json"
	"sort"

	"github.com/mattfenwick/netpol-harness/pkg/connectivity"
	"github.com/pkg/errors"
)

type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Category tallies one category.  Skipped cases say nothing about enforcement, so they are
// counted but kept out of Total.
type Category struct {
	Total      int     `json:"total"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	Percentage float64 `json:"percentage"`
}

type Thresholds struct {
	Minimum    float64            `json:"minimum"`
	Target     float64            `json:"target"`
	Categories map[string]float64 `json:"categories,omitempty"`
}

// Report serializes with its categories at the top level, next to the reserved keys below.
type Report struct {
	Categories map[string]*Category
	Overall    float64
	Totals     Category
	Thresholds Thresholds
	Status     Status
	Violations []string
}

const (
	keyOverall    = "overall"
	keyTotals     = "totals"
	keyThresholds = "thresholds"
	keyStatus     = "status"
	keyViolations = "violations"
)

var reservedKeys = map[string]bool{
	keyOverall:    true,
	keyTotals:     true,
	keyThresholds: true,
	keyStatus:     true,
	keyViolations: true,
}

// IsReservedCategory reports whether a category name would collide with the report's own keys.
func IsReservedCategory(category string) bool {
	return reservedKeys[category]
}

func percentage(passed int, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(passed) / float64(total) * 100
}

// Aggregate reduces a complete result set.  It depends on nothing but its input.
func Aggregate(results []*connectivity.CaseResult) *Report {
	report := &Report{Categories: map[string]*Category{}}
	for _, result := range results {
		category, ok := report.Categories[result.Category]
		if !ok {
			category = &Category{}
			report.Categories[result.Category] = category
		}
		switch result.Status {
		case connectivity.CaseStatusPass:
			category.Total++
			category.Passed++
		case connectivity.CaseStatusFail:
			category.Total++
			category.Failed++
		default:
			category.Skipped++
		}
	}
	for _, category := range report.Categories {
		category.Percentage = percentage(category.Passed, category.Total)
		report.Totals.Total += category.Total
		report.Totals.Passed += category.Passed
		report.Totals.Failed += category.Failed
		report.Totals.Skipped += category.Skipped
	}
	report.Totals.Percentage = percentage(report.Totals.Passed, report.Totals.Total)
	report.Overall = report.Totals.Percentage
	return report
}

func (r *Report) SortedCategories() []string {
	var names []string
	for name := range r.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Report) MarshalJSON() ([]byte, error) {
	doc := map[string]interface{}{
		keyOverall:    r.Overall,
		keyTotals:     r.Totals,
		keyThresholds: r.Thresholds,
		keyStatus:     r.Status,
	}
	if len(r.Violations) > 0 {
		doc[keyViolations] = r.Violations
	}
	for name, category := range r.Categories {
		if IsReservedCategory(name) {
			return nil, errors.Errorf("category name '%s' collides with a report key", name)
		}
		doc[name] = category
	}
	return json.Marshal(doc)
}

func (r *Report) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrapf(err, "unable to unmarshal coverage report")
	}
	decoded := Report{Categories: map[string]*Category{}}
	fields := map[string]interface{}{
		keyOverall:    &decoded.Overall,
		keyTotals:     &decoded.Totals,
		keyThresholds: &decoded.Thresholds,
		keyStatus:     &decoded.Status,
		keyViolations: &decoded.Violations,
	}
	for key, raw := range doc {
		target, ok := fields[key]
		if !ok {
			category := &Category{}
			target = category
			decoded.Categories[key] = category
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return errors.Wrapf(err, "unable to unmarshal coverage report key '%s'", key)
		}
	}
	*r = decoded
	return nil
}
