package policy

import (
	"errors"
	"testing"

	"github.com/newthinker/pushrelay/internal/core"
)

var allLevels = []core.Severity{
	core.SeverityDebug,
	core.SeverityInfo,
	core.SeverityWarning,
	core.SeverityError,
	core.SeverityCritical,
}

func configured(min core.Severity) core.Configuration {
	return core.Configuration{UserKey: "u", APIToken: "t", MinimumSeverity: min}
}

func TestShouldNotify_Unconfigured(t *testing.T) {
	configs := map[string]core.Configuration{
		"missing user key": {APIToken: "t", MinimumSeverity: core.SeverityDebug},
		"missing token":    {UserKey: "u", MinimumSeverity: core.SeverityDebug},
		"missing severity": {UserKey: "u", APIToken: "t"},
		"empty":            {},
	}

	for name, cfg := range configs {
		for _, level := range allLevels {
			ev := core.ErrorEvent{Severity: level}
			if ShouldNotify(cfg, ev, true) {
				t.Errorf("%s: expected false for level %s", name, level)
			}
			if ShouldNotify(cfg, core.Alert{Severity: level}, true) {
				t.Errorf("%s: expected false for alert level %s", name, level)
			}
		}
	}
}

func TestShouldNotify_SeverityThreshold(t *testing.T) {
	for _, min := range allLevels {
		cfg := configured(min)
		for _, level := range allLevels {
			got := ShouldNotify(cfg, core.ErrorEvent{Severity: level}, true)
			want := level >= min
			if got != want {
				t.Errorf("min %s level %s: got %v, want %v", min, level, got, want)
			}
		}
	}
}

func TestShouldNotify_NewOnly(t *testing.T) {
	cfg := core.Configuration{
		UserKey:         "u",
		APIToken:        "t",
		MinimumSeverity: core.SeverityWarning,
		NotifyOnlyNew:   true,
	}
	ev := core.ErrorEvent{Severity: core.SeverityError}

	if ShouldNotify(cfg, ev, false) {
		t.Error("expected repeat occurrence to be rejected")
	}
	if !ShouldNotify(cfg, ev, true) {
		t.Error("expected new occurrence to pass")
	}

	cfg.NotifyOnlyNew = false
	if !ShouldNotify(cfg, ev, false) {
		t.Error("expected repeat occurrence to pass when new-only is off")
	}
}

func TestShouldNotify_AlertsUseSameGates(t *testing.T) {
	cfg := configured(core.SeverityCritical)

	if ShouldNotify(cfg, core.Alert{Message: "m"}, true) {
		t.Error("ungraded alert (ERROR) should be below CRITICAL")
	}
	if !ShouldNotify(cfg, core.Alert{Message: "m", Severity: core.SeverityCritical}, true) {
		t.Error("critical alert should pass")
	}
}

func TestEvaluate_Reasons(t *testing.T) {
	err := Evaluate(core.Configuration{}, core.ErrorEvent{}, true)
	if !errors.Is(err, core.ErrNotConfigured) {
		t.Errorf("expected NOT_CONFIGURED, got %v", err)
	}

	err = Evaluate(configured(core.SeverityError), core.ErrorEvent{Severity: core.SeverityInfo}, true)
	if !errors.Is(err, core.ErrPolicyRejected) {
		t.Errorf("expected POLICY_REJECTED, got %v", err)
	}

	err = Evaluate(configured(core.SeverityError), nil, true)
	if !errors.Is(err, core.ErrPolicyRejected) {
		t.Errorf("expected POLICY_REJECTED for nil occurrence, got %v", err)
	}

	if err := Evaluate(configured(core.SeverityError), core.ErrorEvent{Severity: core.SeverityError}, true); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
