package coverage_test

import (
	"strings"

	"github.com/mattfenwick/netpol-harness/pkg/config"
	"github.com/mattfenwick/netpol-harness/pkg/coverage"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func reportWith(percentages map[string]float64, overall float64) *coverage.Report {
	report := &coverage.Report{Categories: map[string]*coverage.Category{}, Overall: overall}
	for name, p := range percentages {
		report.Categories[name] = &coverage.Category{Percentage: p}
	}
	return report
}

func RunGateTests() {
	Describe("EnforceThreshold", func() {
		thresholds := config.ThresholdsConfig{Minimum: 80, Target: 95, Categories: map[string]float64{"integration": 50}}

		It("passes when every category meets its floor", func() {
			verdict := coverage.EnforceThreshold(reportWith(map[string]float64{"unit": 80, "integration": 50}, 80), thresholds)
			Expect(verdict.Status).To(Equal(coverage.StatusPass))
			Expect(verdict.Violations).To(BeEmpty())
		})

		It("fails on any category below its floor", func() {
			verdict := coverage.EnforceThreshold(reportWith(map[string]float64{"unit": 100, "integration": 49.9}, 90), thresholds)
			Expect(verdict.Status).To(Equal(coverage.StatusFail))
			Expect(verdict.Violations).To(HaveLen(1))
			Expect(verdict.Violations[0]).To(HavePrefix("category integration"))
		})

		It("fails on the overall figure too", func() {
			verdict := coverage.EnforceThreshold(reportWith(map[string]float64{"integration": 60}, 60), thresholds)
			Expect(verdict.Status).To(Equal(coverage.StatusFail))
			Expect(verdict.Violations[0]).To(HavePrefix("overall"))
		})
	})

	Describe("CheckRegression", func() {
		baseline := reportWith(map[string]float64{"unit": 90, "recipe": 100}, 95)

		It("flags only drops larger than maxDrop", func() {
			testCases := []struct {
				Unit    float64
				Flagged bool
			}{
				{Unit: 95, Flagged: false},
				{Unit: 90, Flagged: false},
				{Unit: 85, Flagged: false},
				{Unit: 84.99, Flagged: true},
				{Unit: 10, Flagged: true},
			}
			for _, c := range testCases {
				current := reportWith(map[string]float64{"unit": c.Unit, "recipe": 100}, 95)
				verdict := coverage.CheckRegression(current, baseline, 5)
				Expect(verdict.Status == coverage.StatusFail).To(Equal(c.Flagged), "unit at %f", c.Unit)
			}
		})

		It("flags regressions even while the threshold still passes", func() {
			current := reportWith(map[string]float64{"unit": 90, "recipe": 90}, 90)
			Expect(coverage.EnforceThreshold(current, config.ThresholdsConfig{Minimum: 80}).Status).To(Equal(coverage.StatusPass))
			verdict := coverage.CheckRegression(current, baseline, 5)
			Expect(verdict.Status).To(Equal(coverage.StatusFail))
			Expect(strings.Join(verdict.Violations, "\n")).To(ContainSubstring("category recipe"))
		})

		It("ignores categories missing from this run, and a missing baseline", func() {
			current := reportWith(map[string]float64{"unit": 90}, 95)
			Expect(coverage.CheckRegression(current, baseline, 0).Status).To(Equal(coverage.StatusPass))
			Expect(coverage.CheckRegression(current, nil, 0).Status).To(Equal(coverage.StatusPass))
		})
	})

	Describe("Evaluate", func() {
		It("records the combined verdict on the report", func() {
			report := coverage.Aggregate(results("unit", 1, 1, 0))
			baseline := reportWith(map[string]float64{"unit": 100}, 100)
			verdict := coverage.Evaluate(report, config.ThresholdsConfig{Minimum: 40, Target: 95}, baseline, 5)

			Expect(verdict.Status).To(Equal(coverage.StatusFail))
			Expect(verdict.Violations).To(HaveLen(2))
			Expect(report.Status).To(Equal(coverage.StatusFail))
			Expect(report.Thresholds.Minimum).To(Equal(40.0))
			Expect(coverage.Table(report, baseline)).To(ContainSubstring("status: FAIL"))
		})
	})
}
