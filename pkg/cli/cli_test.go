package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mattfenwick/netpol-harness/pkg/coverage"
	"github.com/mattfenwick/netpol-harness/pkg/utils"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
)

const fastConfigYaml = `
log_level: warn
namespace:
  retry_interval: 1ms
fixture:
  ready_interval: 1ms
policy:
  propagation_delay: 0s
probe:
  backoff: 1ms
`

func execute(args ...string) error {
	command := setupRootCommand()
	command.SetArgs(args)
	return command.Execute()
}

func RunCommandTests() {
	Describe("ExitCode", func() {
		It("maps errors onto exit codes", func() {
			Expect(ExitCode(nil)).To(Equal(ExitPass))
			Expect(ExitCode(gateFailure("below %d", 80))).To(Equal(ExitGateFailure))
			Expect(ExitCode(harnessError(errors.New("no cluster")))).To(Equal(ExitHarnessError))
			Expect(ExitCode(errors.New("unknown flag"))).To(Equal(ExitHarnessError))
			Expect(ExitCode(errors.Wrapf(gateFailure("wrapped"), "context"))).To(Equal(ExitGateFailure))
		})
	})

	Describe("Commands", func() {
		var dir string
		var configPath string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
			configPath = filepath.Join(dir, "harness.yaml")
			Expect(os.WriteFile(configPath, []byte(fastConfigYaml), 0644)).To(Succeed())
		})

		It("runs the built in scenarios against the mock and writes every output", func() {
			reportPath := filepath.Join(dir, "out", "report.json")
			baselinePath := filepath.Join(dir, "baseline.json")
			err := execute("run", "--config", configPath, "--mock", "--include", "unit,integration",
				"--report", reportPath,
				"--badge-dir", filepath.Join(dir, "badges"),
				"--junit", filepath.Join(dir, "junit.xml"),
				"--metrics", filepath.Join(dir, "harness.prom"),
				"--baseline", baselinePath, "--update-baseline")
			Expect(err).To(BeNil())

			report, err := utils.ParseJsonFromFile[coverage.Report](reportPath)
			Expect(err).To(BeNil())
			Expect(report.Status).To(Equal(coverage.StatusPass))
			Expect(report.Totals.Total).To(Equal(4))
			Expect(report.Overall).To(Equal(100.0))

			for _, path := range []string{"badges/overall.json", "badges/unit.json", "badges/integration.json", "junit.xml", "harness.prom", "baseline.json"} {
				Expect(utils.DoesFileExist(filepath.Join(dir, path))).To(BeTrue(), path)
			}
		})

		It("is a harness error, and leaves the baseline alone, when the run is interrupted", func() {
			ctx, cancel := context.WithCancel(context.TODO())
			cancel()
			reportPath := filepath.Join(dir, "report.json")
			baselinePath := filepath.Join(dir, "baseline.json")

			command := setupRootCommand()
			command.SetArgs([]string{"run", "--config", configPath, "--mock", "--minimum", "90",
				"--report", reportPath, "--baseline", baselinePath, "--update-baseline"})
			err := command.ExecuteContext(ctx)

			Expect(ExitCode(err)).To(Equal(ExitHarnessError))
			Expect(err.Error()).To(ContainSubstring("interrupted"))
			Expect(utils.DoesFileExist(baselinePath)).To(BeFalse())
			Expect(utils.DoesFileExist(reportPath)).To(BeFalse())
		})

		It("stops after printing the plan on a dry run", func() {
			Expect(execute("run", "--config", configPath, "--dry-run", "--include", "recipe-01")).To(Succeed())
		})

		It("is a harness error when nothing is selected", func() {
			err := execute("run", "--config", configPath, "--mock", "--include", "no-such-case")
			Expect(ExitCode(err)).To(Equal(ExitHarnessError))
		})

		It("is a harness error when the config is invalid", func() {
			err := execute("list", "--config", configPath, "--verbosity", "chatty")
			Expect(ExitCode(err)).To(Equal(ExitHarnessError))
		})

		It("lists cases", func() {
			Expect(execute("list", "--config", configPath, "--include", "recipe", "--show-policies")).To(Succeed())
		})

		Describe("report", func() {
			var inputPath string

			BeforeEach(func() {
				inputPath = filepath.Join(dir, "report.json")
				report := &coverage.Report{
					Categories: map[string]*coverage.Category{
						"unit": {Total: 10, Passed: 7, Failed: 3, Percentage: 70},
					},
					Overall: 70,
				}
				Expect(utils.WriteJsonToFile(report, inputPath)).To(Succeed())
			})

			It("is a gate failure below the minimum", func() {
				err := execute("report", "--config", configPath, "--input", inputPath, "--minimum", "80")
				Expect(ExitCode(err)).To(Equal(ExitGateFailure))
			})

			It("passes at or above the minimum, and writes badges", func() {
				badgeDir := filepath.Join(dir, "badges")
				Expect(execute("report", "--config", configPath, "--input", inputPath, "--minimum", "70", "--badge-dir", badgeDir)).To(Succeed())
				badge, err := utils.ParseJsonFromFile[coverage.Badge](filepath.Join(badgeDir, "unit.json"))
				Expect(err).To(BeNil())
				Expect(badge.Color).To(Equal("orange"))
			})

			It("is a gate failure on a regression", func() {
				baselinePath := filepath.Join(dir, "baseline.json")
				baseline := &coverage.Report{
					Categories: map[string]*coverage.Category{"unit": {Total: 10, Passed: 9, Percentage: 90}},
					Overall:    90,
				}
				Expect(utils.WriteJsonToFile(baseline, baselinePath)).To(Succeed())
				err := execute("report", "--config", configPath, "--input", inputPath, "--minimum", "50", "--baseline", baselinePath, "--max-drop", "5")
				Expect(ExitCode(err)).To(Equal(ExitGateFailure))
			})
		})
	})
}
