package kube

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/client-go/util/exec"
)

type ProbeCommandType string

const (
	ProbeCommandTypeCurl ProbeCommandType = "curl"
	ProbeCommandTypeWget ProbeCommandType = "wget"
)

var AllProbeCommandTypes = []ProbeCommandType{ProbeCommandTypeCurl, ProbeCommandTypeWget}

func ParseProbeCommandType(s string) (ProbeCommandType, error) {
	for _, t := range AllProbeCommandTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", errors.Errorf("invalid probe command type '%s'", s)
}

// ProbeStatus is what a probe tool reported, before any policy interpretation.
type ProbeStatus string

const (
	// ProbeStatusResponded: an HTTP response came back
	ProbeStatusResponded ProbeStatus = "responded"
	// ProbeStatusTimedOut: no response within the timeout
	ProbeStatusTimedOut ProbeStatus = "timedout"
	// ProbeStatusUnreachable: an ICMP unreachable or similar reject came back
	ProbeStatusUnreachable ProbeStatus = "unreachable"
	// ProbeStatusRefused: the destination is up but nothing listens on the port
	ProbeStatusRefused ProbeStatus = "refused"
	// ProbeStatusReset: the connection opened, then was reset or closed without an HTTP response
	ProbeStatusReset ProbeStatus = "reset"
	// ProbeStatusFailed: the tool failed for some other reason (bad image, DNS, ...)
	ProbeStatusFailed ProbeStatus = "failed"
)

type ProbeResult struct {
	Out      string
	ErrorOut string
	ExitCode int
	Status   ProbeStatus
}

type ProbeCommand interface {
	Command() []string
	ParseOutput(out string, errorOut string, execErr error) *ProbeResult
}

func NewProbeCommand(commandType ProbeCommandType, host string, port int, timeoutSeconds int) (ProbeCommand, error) {
	url := fmt.Sprintf("http://%s/", net.JoinHostPort(host, strconv.Itoa(port)))
	switch commandType {
	case ProbeCommandTypeCurl:
		return &CurlCommand{TimeoutSeconds: timeoutSeconds, URL: url}, nil
	case ProbeCommandTypeWget:
		return &WgetCommand{TimeoutSeconds: timeoutSeconds, URL: url}, nil
	default:
		return nil, errors.Errorf("invalid command type '%s'", commandType)
	}
}

func exitCode(execErr error) (int, bool) {
	var exitErr exec.CodeExitError
	if errors.As(execErr, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

type CurlCommand struct {
	TimeoutSeconds int
	URL            string
}

// Command writes only the HTTP status code to stdout, so that success means the server answered
// at the application layer, not merely that a TCP handshake completed.
func (cc *CurlCommand) Command() []string {
	timeout := strconv.Itoa(cc.TimeoutSeconds)
	return []string{"curl", "-sS", "-o", "/dev/null", "-w", "%{http_code}",
		"--connect-timeout", timeout, "--max-time", timeout, cc.URL}
}

// ParseOutput follows curl's documented exit codes:
//
//	7: failed to connect (refused, or unreachable -- disambiguated by stderr)
//	28: operation timed out
//	52: empty reply from server
//	56: failure receiving network data (reset)
func (cc *CurlCommand) ParseOutput(out string, errorOut string, execErr error) *ProbeResult {
	result := &ProbeResult{Out: out, ErrorOut: errorOut}
	if execErr == nil {
		code := strings.TrimSpace(out)
		if code == "" || code == "000" {
			result.Status = ProbeStatusFailed
		} else {
			result.Status = ProbeStatusResponded
		}
		return result
	}

	code, ok := exitCode(execErr)
	if !ok {
		log.Warningf("unexpected error type for command '%s': %+v", cc.Command(), execErr)
		result.ExitCode = -1
		result.Status = ProbeStatusFailed
		return result
	}
	result.ExitCode = code
	switch code {
	case 7:
		if strings.Contains(errorOut, "No route to host") || strings.Contains(errorOut, "unreachable") {
			result.Status = ProbeStatusUnreachable
		} else {
			result.Status = ProbeStatusRefused
		}
	case 28:
		result.Status = ProbeStatusTimedOut
	case 52, 56:
		result.Status = ProbeStatusReset
	default:
		result.Status = ProbeStatusFailed
	}
	return result
}

type WgetCommand struct {
	TimeoutSeconds int
	URL            string
}

// Command uses busybox wget flags: -q quiet, -O - write the body to stdout, -T timeout.
func (wc *WgetCommand) Command() []string {
	return []string{"wget", "-q", "-O", "-", "-T", strconv.Itoa(wc.TimeoutSeconds), wc.URL}
}

// ParseOutput: wget only has exit code 1 for network failures, so the reason comes from stderr.
func (wc *WgetCommand) ParseOutput(out string, errorOut string, execErr error) *ProbeResult {
	result := &ProbeResult{Out: out, ErrorOut: errorOut}
	if execErr == nil {
		result.Status = ProbeStatusResponded
		return result
	}

	code, ok := exitCode(execErr)
	if !ok {
		log.Warningf("unexpected error type for command '%s': %+v", wc.Command(), execErr)
		result.ExitCode = -1
		result.Status = ProbeStatusFailed
		return result
	}
	result.ExitCode = code

	lowered := strings.ToLower(errorOut)
	switch {
	case strings.Contains(lowered, "server returned error"):
		// got an HTTP response, just not a 2xx
		result.Status = ProbeStatusResponded
	case strings.Contains(lowered, "timed out"):
		result.Status = ProbeStatusTimedOut
	case strings.Contains(lowered, "connection refused"):
		result.Status = ProbeStatusRefused
	case strings.Contains(lowered, "no route to host"), strings.Contains(lowered, "unreachable"):
		result.Status = ProbeStatusUnreachable
	case strings.Contains(lowered, "connection reset"):
		result.Status = ProbeStatusReset
	default:
		result.Status = ProbeStatusFailed
	}
	return result
}
