package coverage_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mattfenwick/netpol-harness/pkg/coverage"
	"github.com/mattfenwick/netpol-harness/pkg/utils"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func RunBaselineTests() {
	Describe("BaselineStore", func() {
		ctx := context.TODO()

		It("has nothing to load at first", func() {
			store := &coverage.BaselineStore{Path: filepath.Join(GinkgoT().TempDir(), "baseline.json")}
			baseline, err := store.Load(ctx)
			Expect(err).To(BeNil())
			Expect(baseline).To(BeNil())
		})

		It("round trips a report", func() {
			dir := GinkgoT().TempDir()
			store := &coverage.BaselineStore{Path: filepath.Join(dir, "nested", "baseline.json")}
			report := coverage.Aggregate(append(results("unit", 3, 1, 0), results("recipe", 1, 0, 0)...))
			report.Status = coverage.StatusPass

			Expect(store.Save(ctx, report)).To(Succeed())
			loaded, err := store.Load(ctx)
			Expect(err).To(BeNil())
			Expect(loaded).To(Equal(report))

			// no temp files left behind
			entries, err := os.ReadDir(filepath.Join(dir, "nested"))
			Expect(err).To(BeNil())
			var names []string
			for _, entry := range entries {
				names = append(names, entry.Name())
			}
			Expect(names).To(ConsistOf("baseline.json", "baseline.json.lock"))
		})

		It("refuses to save a report with no counted cases", func() {
			store := &coverage.BaselineStore{Path: filepath.Join(GinkgoT().TempDir(), "baseline.json")}
			report := coverage.Aggregate(results("unit", 0, 0, 19))
			Expect(report.Overall).To(Equal(100.0))

			err := store.Save(ctx, report)
			Expect(err).To(MatchError(ContainSubstring("no cases were counted")))
			Expect(utils.DoesFileExist(store.Path)).To(BeFalse())
		})

		It("reports a corrupt baseline", func() {
			path := filepath.Join(GinkgoT().TempDir(), "baseline.json")
			Expect(os.WriteFile(path, []byte("{not json"), 0644)).To(Succeed())
			_, err := (&coverage.BaselineStore{Path: path}).Load(ctx)
			Expect(err).To(MatchError(ContainSubstring("unable to parse baseline")))
		})
	})
}
