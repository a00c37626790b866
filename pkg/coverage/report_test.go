package coverage_test

import (
	"encoding/json"
	"fmt"

	"github.com/mattfenwick/netpol-harness/pkg/connectivity"
	"github.com/mattfenwick/netpol-harness/pkg/coverage"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func results(category string, pass int, fail int, skip int) []*connectivity.CaseResult {
	var out []*connectivity.CaseResult
	add := func(n int, status connectivity.CaseStatus) {
		for i := 0; i < n; i++ {
			out = append(out, &connectivity.CaseResult{
				TestCaseID: fmt.Sprintf("%s-%s-%d", category, status, i),
				Category:   category,
				Status:     status,
			})
		}
	}
	add(pass, connectivity.CaseStatusPass)
	add(fail, connectivity.CaseStatusFail)
	add(skip, connectivity.CaseStatusSkip)
	return out
}

func RunAggregateTests() {
	Describe("Aggregate", func() {
		It("computes per-category and weighted overall percentages", func() {
			input := append(results("unit", 3, 1, 2), results("integration", 1, 1, 0)...)
			report := coverage.Aggregate(input)

			Expect(report.Categories).To(HaveLen(2))
			Expect(*report.Categories["unit"]).To(Equal(coverage.Category{Total: 4, Passed: 3, Failed: 1, Skipped: 2, Percentage: 75}))
			Expect(report.Categories["integration"].Percentage).To(Equal(50.0))
			Expect(report.Totals.Total).To(Equal(6))
			Expect(report.Totals.Skipped).To(Equal(2))
			Expect(report.Overall).To(BeNumerically("~", 4.0/6.0*100, 1e-9))
		})

		It("treats an empty category as fully covered", func() {
			report := coverage.Aggregate(results("egress", 0, 0, 3))
			Expect(report.Categories["egress"].Total).To(Equal(0))
			Expect(report.Categories["egress"].Percentage).To(Equal(100.0))
			Expect(report.Overall).To(Equal(100.0))

			Expect(coverage.Aggregate(nil).Overall).To(Equal(100.0))
		})

		It("is a pure function of its input", func() {
			input := append(results("unit", 5, 2, 1), results("recipe", 7, 0, 0)...)
			Expect(coverage.Aggregate(input)).To(Equal(coverage.Aggregate(input)))
		})

		It("counts every result from a 50 case run", func() {
			report := coverage.Aggregate(results("unit", 50, 0, 0))
			Expect(report.Totals.Total).To(Equal(50))
			Expect(report.Categories["unit"].Total).To(Equal(50))
		})
	})

	Describe("Report json", func() {
		It("puts categories at the top level and reads them back", func() {
			report := coverage.Aggregate(append(results("unit", 1, 1, 0), results("recipe", 2, 0, 0)...))
			report.Status = coverage.StatusFail
			report.Violations = []string{"something"}
			report.Thresholds = coverage.Thresholds{Minimum: 80, Target: 95}

			bytes, err := json.Marshal(report)
			Expect(err).To(BeNil())

			var doc map[string]interface{}
			Expect(json.Unmarshal(bytes, &doc)).To(Succeed())
			Expect(doc).To(HaveKeyWithValue("status", "FAIL"))
			Expect(doc).To(HaveKeyWithValue("overall", 75.0))
			Expect(doc["unit"]).To(HaveKeyWithValue("percentage", 50.0))
			Expect(doc["thresholds"]).To(HaveKeyWithValue("minimum", 80.0))

			parsed := &coverage.Report{}
			Expect(json.Unmarshal(bytes, parsed)).To(Succeed())
			Expect(parsed).To(Equal(report))
		})

		It("refuses categories that collide with report keys", func() {
			_, err := json.Marshal(coverage.Aggregate(results("status", 1, 0, 0)))
			Expect(err).To(MatchError(ContainSubstring("collides")))
		})
	})
}
