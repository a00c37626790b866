package coverage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattfenwick/netpol-harness/pkg/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const lockRetryDelay = 100 * time.Millisecond

// BaselineStore reads and writes the report that regressions are measured against.  A sibling
// ".lock" file serializes access between harness processes.
type BaselineStore struct {
	Path string
}

func (s *BaselineStore) lock() *flock.Flock {
	return flock.New(s.Path + ".lock")
}

// Load returns nil, without error, when there is no baseline yet.
func (s *BaselineStore) Load(ctx context.Context) (*Report, error) {
	if !utils.DoesFileExist(s.Path) {
		log.Infof("no baseline at %s; regression check will pass", s.Path)
		return nil, nil
	}

	lock := s.lock()
	locked, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to lock baseline %s", s.Path)
	}
	if !locked {
		return nil, errors.Errorf("unable to lock baseline %s", s.Path)
	}
	defer unlock(lock)

	bytes, err := utils.ReadFileBytes(s.Path)
	if err != nil {
		return nil, err
	}
	report := &Report{}
	if err := json.Unmarshal(bytes, report); err != nil {
		return nil, errors.Wrapf(err, "unable to parse baseline %s", s.Path)
	}
	return report, nil
}

// Save replaces the baseline atomically.  A report with no counted cases is refused: every
// later run would be compared against vacuous 100% figures.
func (s *BaselineStore) Save(ctx context.Context, report *Report) error {
	if report.Totals.Total == 0 {
		return errors.Errorf("refusing to save baseline %s: no cases were counted", s.Path)
	}
	bytes, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "unable to marshal baseline")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return errors.Wrapf(err, "unable to create directory for baseline %s", s.Path)
	}

	lock := s.lock()
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return errors.Wrapf(err, "unable to lock baseline %s", s.Path)
	}
	if !locked {
		return errors.Errorf("unable to lock baseline %s", s.Path)
	}
	defer unlock(lock)

	return utils.AtomicWriteFile(s.Path, append(bytes, '\n'), 0644)
}

func unlock(lock *flock.Flock) {
	if err := lock.Unlock(); err != nil {
		log.Warnf("unable to unlock %s: %v", lock.Path(), err)
	}
}
