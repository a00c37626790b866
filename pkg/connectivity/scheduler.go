package connectivity

import (
	"context"
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

type Scheduler struct {
	Executor CaseExecutor
	Workers  int
	// FailFast cancels every case still to run once one case fails.
	FailFast bool
	// OnResult, if set, sees each result as it arrives.  It is only ever called from the
	// goroutine that called RunAll.
	OnResult func(*CaseResult)
}

type scheduledCase struct {
	index    int
	testCase *TestCase
}

type scheduledResult struct {
	index  int
	result *CaseResult
}

// RunAll runs every case and returns one result per case, in the order the cases were given.
// It returns only once every worker has finished.
func (s *Scheduler) RunAll(ctx context.Context, testCases []*TestCase) []*CaseResult {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(testCases) {
		workers = len(testCases)
	}

	size := len(testCases)
	jobs := make(chan *scheduledCase, size)
	results := make(chan *scheduledResult, size)
	for i := 0; i < workers; i++ {
		go s.worker(ctx, jobs, results)
	}
	for i, testCase := range testCases {
		jobs <- &scheduledCase{index: i, testCase: testCase}
	}
	close(jobs)

	ordered := make([]*CaseResult, size)
	for i := 0; i < size; i++ {
		result := <-results
		ordered[result.index] = result.result
		if s.OnResult != nil {
			s.OnResult(result.result)
		}
		if s.FailFast && result.result.Status == CaseStatusFail && ctx.Err() == nil {
			log.Warnf("case %s failed; cancelling remaining cases", result.result.TestCaseID)
			cancel()
		}
	}
	return ordered
}

// worker runs cases until the jobs channel is closed.  Whatever happens inside a case, a result
// is written for it.
func (s *Scheduler) worker(ctx context.Context, jobs <-chan *scheduledCase, results chan<- *scheduledResult) {
	for job := range jobs {
		results <- &scheduledResult{index: job.index, result: s.runSafely(ctx, job.testCase)}
	}
}

func (s *Scheduler) runSafely(ctx context.Context, testCase *TestCase) (result *CaseResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.WithField("case", testCase.ID).Errorf("case panicked: %v\n%s", recovered, debug.Stack())
			err := newHarnessError(ErrorKindPanic, nil, "%v", recovered)
			result = &CaseResult{
				TestCaseID: testCase.ID,
				Category:   testCase.Category,
				Status:     CaseStatusFail,
				Reason:     fmt.Sprintf("panic: %v", recovered),
				SetupError: err,
				States:     []CaseState{CaseStatePending, CaseStateDone},
			}
		}
	}()
	if ctx.Err() != nil {
		return &CaseResult{
			TestCaseID: testCase.ID,
			Category:   testCase.Category,
			Status:     CaseStatusSkip,
			Reason:     "cancelled",
			SetupError: newHarnessError(ErrorKindCancelled, ctx.Err(), "not started"),
			States:     []CaseState{CaseStatePending, CaseStateDone},
		}
	}
	result = s.Executor.Run(ctx, testCase)
	if result == nil {
		panic(fmt.Sprintf("no result for case %s", testCase.ID))
	}
	return result
}
