// Package policy decides whether an occurrence deserves a notification.
package policy

import (
	"fmt"

	"github.com/newthinker/pushrelay/internal/core"
)

// Evaluate runs the gates in order and returns the first rejection, or nil
// when the occurrence should be delivered. Alerts are always new.
func Evaluate(cfg core.Configuration, occ core.Occurrence, isNew bool) *core.Error {
	if !cfg.Configured() {
		return core.WrapError(core.ErrNotConfigured, missingFields(cfg))
	}

	if occ == nil {
		return core.WrapError(core.ErrPolicyRejected, fmt.Errorf("no occurrence"))
	}

	if cfg.NotifyOnlyNew && !isNew {
		return core.WrapError(core.ErrPolicyRejected, fmt.Errorf("occurrence is not new"))
	}

	if occ.Level() < cfg.MinimumSeverity {
		return core.WrapError(core.ErrPolicyRejected,
			fmt.Errorf("level %s below minimum %s", occ.Level(), cfg.MinimumSeverity))
	}

	return nil
}

// ShouldNotify reports whether every gate passes.
func ShouldNotify(cfg core.Configuration, occ core.Occurrence, isNew bool) bool {
	return Evaluate(cfg, occ, isNew) == nil
}

func missingFields(cfg core.Configuration) error {
	var missing []string
	if cfg.UserKey == "" {
		missing = append(missing, "user_key")
	}
	if cfg.APIToken == "" {
		missing = append(missing, "api_token")
	}
	if cfg.MinimumSeverity == core.SeverityUnset {
		missing = append(missing, "minimum_severity")
	}
	if len(missing) == 0 {
		return fmt.Errorf("blank credentials")
	}
	return fmt.Errorf("missing %v", missing)
}
