package coverage

import (
	"fmt"

	"github.com/mattfenwick/netpol-harness/pkg/config"
	log "github.com/sirupsen/logrus"
)

// Verdict is the outcome of one gate, with a line per violation.
type Verdict struct {
	Status     Status
	Violations []string
}

func newVerdict(violations []string) Verdict {
	if len(violations) > 0 {
		return Verdict{Status: StatusFail, Violations: violations}
	}
	return Verdict{Status: StatusPass}
}

// EnforceThreshold fails if any category, or the overall figure, is below its floor.
func EnforceThreshold(report *Report, thresholds config.ThresholdsConfig) Verdict {
	var violations []string
	for _, name := range report.SortedCategories() {
		category := report.Categories[name]
		floor := thresholds.MinimumFor(name)
		if category.Percentage < floor {
			violations = append(violations, fmt.Sprintf("category %s: %.2f%% is below the minimum of %.2f%%", name, category.Percentage, floor))
		} else if category.Percentage < thresholds.Target {
			log.Warnf("category %s: %.2f%% is below the target of %.2f%%", name, category.Percentage, thresholds.Target)
		}
	}
	if report.Overall < thresholds.Minimum {
		violations = append(violations, fmt.Sprintf("overall: %.2f%% is below the minimum of %.2f%%", report.Overall, thresholds.Minimum))
	}
	return newVerdict(violations)
}

// CheckRegression fails if any category, or the overall figure, dropped by more than maxDrop
// points against the baseline.  Categories absent from either report are not compared, and a nil
// baseline passes.
func CheckRegression(current *Report, baseline *Report, maxDrop float64) Verdict {
	if baseline == nil {
		return newVerdict(nil)
	}
	var violations []string
	for _, name := range baseline.SortedCategories() {
		category, ok := current.Categories[name]
		if !ok {
			log.Debugf("category %s is in the baseline but not in this run", name)
			continue
		}
		was := baseline.Categories[name].Percentage
		if was-category.Percentage > maxDrop {
			violations = append(violations, fmt.Sprintf("category %s: dropped from %.2f%% to %.2f%%, more than %.2f points", name, was, category.Percentage, maxDrop))
		}
	}
	if baseline.Overall-current.Overall > maxDrop {
		violations = append(violations, fmt.Sprintf("overall: dropped from %.2f%% to %.2f%%, more than %.2f points", baseline.Overall, current.Overall, maxDrop))
	}
	return newVerdict(violations)
}

// Evaluate runs both gates and records the combined verdict on the report.
func Evaluate(report *Report, thresholds config.ThresholdsConfig, baseline *Report, maxDrop float64) Verdict {
	threshold := EnforceThreshold(report, thresholds)
	regression := CheckRegression(report, baseline, maxDrop)
	combined := newVerdict(append(append([]string{}, threshold.Violations...), regression.Violations...))

	report.Thresholds = Thresholds{Minimum: thresholds.Minimum, Target: thresholds.Target, Categories: thresholds.Categories}
	report.Status = combined.Status
	report.Violations = combined.Violations
	return combined
}
