package coverage

import (
	"fmt"
	"path/filepath"

	"github.com/mattfenwick/netpol-harness/pkg/utils"
	"github.com/pkg/errors"
)

// Badge is a shields.io endpoint document.
type Badge struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
	Color         string `json:"color"`
}

func BadgeColor(percentage float64) string {
	switch {
	case percentage >= 95:
		return "brightgreen"
	case percentage >= 90:
		return "green"
	case percentage >= 75:
		return "yellow"
	case percentage >= 50:
		return "orange"
	default:
		return "red"
	}
}

func NewBadge(label string, percentage float64) *Badge {
	return &Badge{
		SchemaVersion: 1,
		Label:         label,
		Message:       fmt.Sprintf("%.1f%%", percentage),
		Color:         BadgeColor(percentage),
	}
}

// Badges has one badge per category, keyed by category, plus one keyed "overall".
func Badges(report *Report) map[string]*Badge {
	badges := map[string]*Badge{
		keyOverall: NewBadge("netpol coverage", report.Overall),
	}
	for name, category := range report.Categories {
		badges[name] = NewBadge("netpol "+name, category.Percentage)
	}
	return badges
}

// WriteBadges writes <key>.json into dir for every badge, returning the paths written.
func WriteBadges(dir string, report *Report) ([]string, error) {
	var paths []string
	badges := Badges(report)
	for _, key := range append([]string{keyOverall}, report.SortedCategories()...) {
		path := filepath.Join(dir, key+".json")
		if err := utils.WriteJsonToFile(badges[key], path); err != nil {
			return paths, errors.WithMessagef(err, "unable to write badge %s", key)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
