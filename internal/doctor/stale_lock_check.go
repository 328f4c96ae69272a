package doctor

import (
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// staleLockAfter uses the same 10s value as the manifest package's
// lockStaleAfter, which bounds how long Update waits for the lock.
const staleLockAfter = 10 * time.Second

// StaleLockCheck flags a manifest lock file older than the staleness
// window that a TryLock probe shows is still held.
type StaleLockCheck struct {
	FixableCheck
}

// NewStaleLockCheck constructs the stale-lock check.
func NewStaleLockCheck() *StaleLockCheck {
	return &StaleLockCheck{
		FixableCheck: FixableCheck{
			BaseCheck: BaseCheck{
				CheckName:        "stale-lock",
				CheckDescription: "Detect a manifest lock file that is old and still held",
				CheckCategory:    CategoryManifest,
			},
		},
	}
}

func (c *StaleLockCheck) lockPath(ctx *CheckContext) string {
	return ctx.ManifestPath + ".lock"
}

// Run inspects the lock file's age and whether it is still actively held.
func (c *StaleLockCheck) Run(ctx *CheckContext) *CheckResult {
	lockPath := c.lockPath(ctx)
	info, err := os.Stat(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "no lock file present"}
		}
		return &CheckResult{Name: c.Name(), Status: StatusError, Message: fmt.Sprintf("stat lock file: %v", err)}
	}

	age := time.Since(info.ModTime())
	if age < staleLockAfter {
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "lock file is fresh"}
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return &CheckResult{Name: c.Name(), Status: StatusError, Message: fmt.Sprintf("probing lock: %v", err)}
	}
	if locked {
		// We were able to acquire it ourselves: nobody was actually holding
		// it, just an old but released lock file. Release immediately.
		fl.Unlock() //nolint:errcheck
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "lock file old but unheld"}
	}

	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusWarning,
		Message: fmt.Sprintf("lock file held for %s, beyond the %s staleness window", age.Round(time.Second), staleLockAfter),
		FixHint: "run doctor --fix to clear the stale lock",
	}
}

// Fix removes the lock file. It does not stop the process holding the lock.
func (c *StaleLockCheck) Fix(ctx *CheckContext) error {
	err := os.Remove(c.lockPath(ctx))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
