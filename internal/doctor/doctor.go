// Package doctor implements a pluggable list of health checks over a
// project's manifest, process-manager state, and dashboard server, each
// returning OK/Warning/Error with an optional auto-fix.
package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/xcawolfe-amzn/ppg/internal/pm"
)

// Status is the outcome severity of a single check run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Category groups related checks for display purposes.
type Category string

const (
	CategoryManifest Category = "manifest"
	CategoryProcess  Category = "process"
	CategoryWeb      Category = "web"
)

// CheckContext carries the ambient state every check needs: the project
// root, the live manifest path, the process manager backing the session,
// and flags controlling verbosity and fix behavior.
type CheckContext struct {
	Context      context.Context
	ProjectRoot  string
	ManifestPath string
	SessionName  string
	PM           pm.PM
	// DashboardURL is set when a dashboard server is expected to be
	// reachable (empty skips the dashboard-reachable check).
	DashboardURL string
	Verbose      bool
}

// CheckResult is the outcome of running a single Check.
type CheckResult struct {
	Name    string
	Status  Status
	Message string
	Details []string
	FixHint string
}

// Check is implemented by every registered health check.
type Check interface {
	Name() string
	Description() string
	Category() Category
	Run(ctx *CheckContext) *CheckResult
}

// Fixable is implemented by checks that support an automatic remediation.
type Fixable interface {
	Check
	Fix(ctx *CheckContext) error
}

// BaseCheck supplies the Name/Description/Category boilerplate every check
// embeds.
type BaseCheck struct {
	CheckName        string
	CheckDescription string
	CheckCategory    Category
}

func (c BaseCheck) Name() string          { return c.CheckName }
func (c BaseCheck) Description() string   { return c.CheckDescription }
func (c BaseCheck) Category() Category    { return c.CheckCategory }

// FixableCheck is BaseCheck plus the Fixable marker; concrete checks that
// support Fix embed this instead of BaseCheck.
type FixableCheck struct {
	BaseCheck
}

// Doctor runs a registered list of checks in order and collects results.
type Doctor struct {
	checks []Check
}

// NewDoctor returns an empty Doctor.
func NewDoctor() *Doctor {
	return &Doctor{}
}

// Register adds a single check.
func (d *Doctor) Register(c Check) {
	d.checks = append(d.checks, c)
}

// RegisterAll adds every check in order.
func (d *Doctor) RegisterAll(checks ...Check) {
	for _, c := range checks {
		d.Register(c)
	}
}

// Checks returns the registered checks in registration order.
func (d *Doctor) Checks() []Check {
	return d.checks
}

// Run executes every registered check in order, returning one CheckResult
// per check. A check that panics is recovered into a StatusError result so
// one bad check never aborts the rest of the run.
func (d *Doctor) Run(ctx *CheckContext) []*CheckResult {
	results := make([]*CheckResult, 0, len(d.checks))
	for _, c := range d.checks {
		results = append(results, runOne(c, ctx))
	}
	return results
}

func runOne(c Check, ctx *CheckContext) (result *CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			result = &CheckResult{
				Name:    c.Name(),
				Status:  StatusError,
				Message: fmt.Sprintf("check panicked: %v", r),
			}
		}
	}()
	return c.Run(ctx)
}

// Fix runs Fix for every result that reported a non-OK status and whose
// check implements Fixable, returning the names of checks that were fixed.
func (d *Doctor) Fix(ctx *CheckContext, results []*CheckResult) ([]string, []error) {
	byName := make(map[string]Check, len(d.checks))
	for _, c := range d.checks {
		byName[c.Name()] = c
	}

	var fixed []string
	var errs []error
	for _, res := range results {
		if res.Status == StatusOK {
			continue
		}
		c, ok := byName[res.Name]
		if !ok {
			continue
		}
		f, ok := c.(Fixable)
		if !ok {
			continue
		}
		if err := f.Fix(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, err))
			continue
		}
		fixed = append(fixed, res.Name)
	}
	return fixed, errs
}

// DefaultChecks returns the standard set of checks wired for a ppg project,
// in the order they should run.
func DefaultChecks() []Check {
	return []Check{
		NewManifestSchemaCheck(),
		NewOrphanWindowsCheck(),
		NewStaleLockCheck(),
		NewDashboardReachableCheck(),
	}
}

// defaultCheckTimeout bounds any single check that performs I/O (process
// manager calls, HTTP requests) so one hung check cannot stall the run.
const defaultCheckTimeout = 5 * time.Second
