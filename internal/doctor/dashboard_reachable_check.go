package doctor

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// DashboardReachableCheck headlessly loads the dashboard's "/" route and
// confirms the page actually rendered, catching cases where the dashboard
// mux's static handler or template wiring is broken in a way that a plain
// HTTP GET wouldn't distinguish from a working page.
type DashboardReachableCheck struct {
	BaseCheck
}

// NewDashboardReachableCheck constructs the dashboard-reachable check.
func NewDashboardReachableCheck() *DashboardReachableCheck {
	return &DashboardReachableCheck{
		BaseCheck: BaseCheck{
			CheckName:        "dashboard-reachable",
			CheckDescription: "Headlessly load the dashboard and verify the page title renders",
			CheckCategory:    CategoryWeb,
		},
	}
}

// Run connects a headless browser to ctx.DashboardURL and checks it loads.
func (c *DashboardReachableCheck) Run(ctx *CheckContext) *CheckResult {
	if ctx.DashboardURL == "" {
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "no dashboard URL configured (skipped)"}
	}

	browser := rod.New()
	if err := browser.Connect(); err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: fmt.Sprintf("launching headless browser: %v", err),
		}
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: ctx.DashboardURL})
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: fmt.Sprintf("opening %s: %v", ctx.DashboardURL, err),
		}
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: fmt.Sprintf("page did not finish loading: %v", err),
		}
	}

	info, err := page.Info()
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: fmt.Sprintf("reading page info: %v", err),
		}
	}

	if info.Title == "" {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: "dashboard loaded but rendered an empty title",
		}
	}

	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: fmt.Sprintf("dashboard reachable, title %q", info.Title),
	}
}
