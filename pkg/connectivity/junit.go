package connectivity

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"

	junit "github.com/jstemmer/go-junit-report/formatter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func PrintJUnitResults(filename string, results []*CaseResult) error {
	if filename == "" {
		return nil
	}

	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s for junit output", filename)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			logrus.Errorf("unable to close junit file %s: %v", filename, closeErr)
		}
	}()
	return errors.Wrapf(printJunit(f, results), "unable to write junit output to %s", filename)
}

func printJunit(w io.Writer, results []*CaseResult) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "    ")
	if err := enc.Encode(resultsToJunit(results)); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func resultsToJunit(results []*CaseResult) junit.JUnitTestSuite {
	suite := junit.JUnitTestSuite{
		Name:      "netpol-harness",
		Tests:     len(results),
		TestCases: []junit.JUnitTestCase{},
	}

	var total float64
	for _, result := range results {
		seconds := result.Duration.Seconds()
		total += seconds
		tc := junit.JUnitTestCase{
			Classname: result.Category,
			Name:      result.TestCaseID,
			Time:      fmt.Sprintf("%.3f", seconds),
		}
		switch result.Status {
		case CaseStatusFail:
			suite.Failures++
			failure := &junit.JUnitFailure{Message: result.Reason}
			if len(result.FailedExpectations) > 0 {
				failure.Type = string(result.FailedExpectations[0].FailureKind())
			} else if kind, ok := ErrorKindOf(result.SetupError); ok {
				failure.Type = string(kind)
			}
			for _, failed := range result.FailedExpectations {
				failure.Contents += failed.String() + "\n"
			}
			tc.Failure = failure
		case CaseStatusSkip:
			tc.SkipMessage = &junit.JUnitSkipMessage{Message: result.Reason}
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	suite.Time = fmt.Sprintf("%.3f", total)
	return suite
}
