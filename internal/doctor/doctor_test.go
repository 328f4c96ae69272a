package doctor

import (
	"errors"
	"testing"
)

type fakeCheck struct {
	BaseCheck
	result *CheckResult
	panics bool
}

func (c *fakeCheck) Run(ctx *CheckContext) *CheckResult {
	if c.panics {
		panic("boom")
	}
	return c.result
}

type fakeFixable struct {
	fakeCheck
	fixErr   error
	fixCalls int
}

func (c *fakeFixable) Fix(ctx *CheckContext) error {
	c.fixCalls++
	return c.fixErr
}

func TestDoctorRunCollectsAllResultsInOrder(t *testing.T) {
	d := NewDoctor()
	d.RegisterAll(
		&fakeCheck{BaseCheck: BaseCheck{CheckName: "first"}, result: &CheckResult{Name: "first", Status: StatusOK}},
		&fakeCheck{BaseCheck: BaseCheck{CheckName: "second"}, result: &CheckResult{Name: "second", Status: StatusWarning}},
	)

	results := d.Run(&CheckContext{})
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Name != "first" || results[1].Name != "second" {
		t.Fatalf("results out of order: %+v", results)
	}
}

func TestDoctorRunRecoversFromPanickingCheck(t *testing.T) {
	d := NewDoctor()
	d.Register(&fakeCheck{BaseCheck: BaseCheck{CheckName: "boom"}, panics: true})
	d.Register(&fakeCheck{BaseCheck: BaseCheck{CheckName: "after"}, result: &CheckResult{Name: "after", Status: StatusOK}})

	results := d.Run(&CheckContext{})
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2 (panic must not abort the run)", len(results))
	}
	if results[0].Status != StatusError {
		t.Errorf("panicking check status = %v, want StatusError", results[0].Status)
	}
	if results[1].Status != StatusOK {
		t.Errorf("subsequent check did not run: %+v", results[1])
	}
}

func TestDoctorFixOnlyCallsFixForNonOKFixableResults(t *testing.T) {
	okFixable := &fakeFixable{fakeCheck: fakeCheck{BaseCheck: BaseCheck{CheckName: "ok-fixable"}}}
	warnFixable := &fakeFixable{fakeCheck: fakeCheck{BaseCheck: BaseCheck{CheckName: "warn-fixable"}}}
	warnNotFixable := &fakeCheck{BaseCheck: BaseCheck{CheckName: "warn-plain"}}

	d := NewDoctor()
	d.RegisterAll(okFixable, warnFixable, warnNotFixable)

	results := []*CheckResult{
		{Name: "ok-fixable", Status: StatusOK},
		{Name: "warn-fixable", Status: StatusWarning},
		{Name: "warn-plain", Status: StatusWarning},
	}

	fixed, errs := d.Fix(&CheckContext{}, results)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(fixed) != 1 || fixed[0] != "warn-fixable" {
		t.Fatalf("fixed = %v, want only warn-fixable", fixed)
	}
	if okFixable.fixCalls != 0 {
		t.Errorf("Fix called on an OK result")
	}
	if warnFixable.fixCalls != 1 {
		t.Errorf("Fix not called on warn-fixable")
	}
}

func TestDoctorFixCollectsErrors(t *testing.T) {
	broken := &fakeFixable{fakeCheck: fakeCheck{BaseCheck: BaseCheck{CheckName: "broken"}}, fixErr: errors.New("nope")}
	d := NewDoctor()
	d.Register(broken)

	_, errs := d.Fix(&CheckContext{}, []*CheckResult{{Name: "broken", Status: StatusWarning}})
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want 1 error", errs)
	}
}
