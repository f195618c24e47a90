package security

import (
	"context"
	"fmt"
)

// Canary targets checked by PolicyProbe. The first must always be rejected,
// the second always accepted.
const (
	probeBlockedTarget = "http://169.254.169.254/latest/meta-data/"
	probeAllowedTarget = "https://example.com/"
)

// PolicyProbe is a health probe that runs the policy against fixed canary
// URLs. A misconfigured allow-list or blocklist shows up as unhealthy.
type PolicyProbe struct {
	policy *Policy
}

// NewPolicyProbe wraps p.
func NewPolicyProbe(p *Policy) *PolicyProbe {
	return &PolicyProbe{policy: p}
}

func (*PolicyProbe) Name() string { return "policy" }

func (pp *PolicyProbe) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pp.policy == nil {
		return fmt.Errorf("no policy configured")
	}
	if res := pp.policy.Validate(probeBlockedTarget); res.Valid {
		return fmt.Errorf("canary %s was accepted", probeBlockedTarget)
	}
	if res := pp.policy.Validate(probeAllowedTarget); !res.Valid {
		return fmt.Errorf("canary %s was rejected: %s", probeAllowedTarget, res.Error)
	}
	return nil
}
