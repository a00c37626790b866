package connectivity

import (
	"context"
	"strings"
	"time"

	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/mattfenwick/netpol-harness/pkg/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// execOverhead covers getting the command into the pod, on top of the probe's own timeout.
const execOverhead = 10 * time.Second

type Prober struct {
	Kubernetes  kube.IKubernetes
	CommandType kube.ProbeCommandType
	Timeout     time.Duration
	Attempts    int
	Backoff     time.Duration
}

// Classify maps what the probe tool saw onto a verdict.  Only a real HTTP response counts as
// Allow; a completed TCP handshake with no response is Ambiguous, as is a refused connection.
func Classify(status kube.ProbeStatus) (Outcome, error) {
	switch status {
	case kube.ProbeStatusResponded:
		return OutcomeAllow, nil
	case kube.ProbeStatusTimedOut, kube.ProbeStatusUnreachable:
		return OutcomeDeny, nil
	case kube.ProbeStatusRefused, kube.ProbeStatusReset:
		return OutcomeAmbiguous, nil
	default:
		return "", errors.Errorf("probe check failed with status %s", status)
	}
}

func (p *Prober) timeoutSeconds() int {
	seconds := int(p.Timeout / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

// ProbeOnce runs a single probe from one fixture to a port on another.
func (p *Prober) ProbeOnce(ctx context.Context, from *Fixture, to *Fixture, port int) (Outcome, kube.ProbeStatus, error) {
	command, err := kube.NewProbeCommand(p.CommandType, to.IP, port, p.timeoutSeconds())
	if err != nil {
		return "", "", err
	}
	logger := log.WithFields(log.Fields{"from": from.Namespace + "/" + from.PodName, "to": to.Namespace + "/" + to.PodName, "port": port})
	logger.Debugf("probing: %s", strings.Join(command.Command(), " "))

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(p.timeoutSeconds())*time.Second+execOverhead)
	defer cancel()
	out, errOut, commandErr, err := p.Kubernetes.ExecuteRemoteCommand(execCtx, from.Namespace, from.PodName, from.Container(), command.Command())
	logger.Tracef("stdout: %s\nstderr: %s\ncommand error: %v", out, errOut, commandErr)
	if err != nil {
		return "", "", errors.WithMessagef(err, "unable to exec probe")
	}

	result := command.ParseOutput(out, errOut, commandErr)
	outcome, err := Classify(result.Status)
	if err != nil {
		return "", result.Status, errors.WithMessagef(err, "exit code %d, stderr '%s'", result.ExitCode, strings.TrimSpace(errOut))
	}
	return outcome, result.Status, nil
}

// Probe retries until the observation matches the expectation or attempts run out.  It never
// forces a pass: the last clean observation is what gets reported, even if later attempts
// couldn't run.  Err is only set when no attempt produced an observation.
func (p *Prober) Probe(ctx context.Context, expectation Expectation, from *Fixture, to *Fixture, port int) *ProbeResult {
	result := &ProbeResult{Expectation: expectation}
	start := time.Now()
	maxAttempts := p.Attempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	var lastErrStatus kube.ProbeStatus
	attempts, pollErr := utils.Poll{Interval: p.Backoff, MaxAttempts: maxAttempts}.Until(ctx, func(ctx context.Context) (bool, error) {
		observed, status, err := p.ProbeOnce(ctx, from, to, port)
		if err != nil {
			lastErr, lastErrStatus = err, status
			log.Debugf("probe %s attempt failed: %v", expectation, err)
			return false, nil
		}
		result.Observed = observed
		result.Status = status
		return observed == expectation.Outcome, nil
	})
	result.Attempts = attempts
	result.Elapsed = time.Since(start)
	if result.Observed != "" {
		return result
	}
	result.Status = lastErrStatus
	switch {
	case lastErr != nil:
		result.Err = ProbeFailure(lastErr, "probe %s", expectation)
	case pollErr != nil:
		result.Err = ProbeFailure(pollErr, "probe %s interrupted", expectation)
	}
	return result
}

// Canary returns a CanaryFunc that self-probes a fixture, for adaptive propagation waits.
func (p *Prober) Canary(fixture *Fixture) CanaryFunc {
	return func(ctx context.Context) (bool, error) {
		observed, _, err := p.ProbeOnce(ctx, fixture, fixture, fixture.Ports[0])
		if err != nil {
			return false, err
		}
		return observed == OutcomeAllow, nil
	}
}
