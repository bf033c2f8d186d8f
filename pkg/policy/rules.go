package policy

import (
	"fmt"
	"math"
	"time"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/types"
)

// Built-in business rule names.
const (
	RulePriceDrift    = "price-drift"
	RuleConfidence    = "confidence"
	RuleTimeout       = "timeout-overrun"
	RuleRevisionCount = "revision-count"
	RuleLicense       = "license-presence"
)

// RuleResult is the outcome of evaluating one business rule.
type RuleResult struct {
	Rule   string
	Passed bool
	Reason string
}

// RuleFunc evaluates one named rule against an input record.
type RuleFunc func(input map[string]any) RuleResult

// RegisterRule adds or replaces a named rule.
func (p *Policy) RegisterRule(name string, fn RuleFunc) {
	p.ruleMu.Lock()
	defer p.ruleMu.Unlock()
	p.rules[name] = fn
}

// Evaluate runs a named rule. A failed rule is recorded as a violation and
// surfaced as a PolicyViolation error; unknown rules are NotFound.
func (p *Policy) Evaluate(rule string, input map[string]any) (RuleResult, error) {
	p.ruleMu.RLock()
	fn, ok := p.rules[rule]
	p.ruleMu.RUnlock()
	if !ok {
		return RuleResult{}, types.E(types.KindNotFound, "policy.evaluate", "unknown rule: "+rule)
	}

	res := fn(input)
	if !res.Passed {
		p.recordViolation("rule_failed", map[string]any{
			"rule":   res.Rule,
			"reason": res.Reason,
		})
		return res, types.E(types.KindPolicyViolation, "policy.evaluate", res.Rule+": "+res.Reason)
	}
	return res, nil
}

func (p *Policy) registerBuiltinRules() {
	p.rules[RulePriceDrift] = func(input map[string]any) RuleResult {
		oldPrice, ok1 := toFloat(input["oldPrice"])
		newPrice, ok2 := toFloat(input["newPrice"])
		if !ok1 || !ok2 || oldPrice == 0 {
			return RuleResult{Rule: RulePriceDrift, Reason: "prices missing or zero baseline"}
		}
		drift := math.Abs(newPrice-oldPrice) / oldPrice
		if drift > p.cfg.Rules.PriceDriftThreshold {
			return RuleResult{Rule: RulePriceDrift, Reason: fmt.Sprintf("price drifted %.1f%%", drift*100)}
		}
		return RuleResult{Rule: RulePriceDrift, Passed: true}
	}

	p.rules[RuleConfidence] = func(input map[string]any) RuleResult {
		score, ok := toFloat(input["confidence"])
		if !ok {
			return RuleResult{Rule: RuleConfidence, Reason: "confidence missing"}
		}
		if score < p.cfg.Rules.MinConfidence {
			return RuleResult{Rule: RuleConfidence, Reason: fmt.Sprintf("confidence %.2f below minimum", score)}
		}
		return RuleResult{Rule: RuleConfidence, Passed: true}
	}

	p.rules[RuleTimeout] = func(input map[string]any) RuleResult {
		elapsedMs, ok1 := toFloat(input["elapsedMs"])
		budgetMs, ok2 := toFloat(input["budgetMs"])
		if !ok1 || !ok2 {
			return RuleResult{Rule: RuleTimeout, Reason: "elapsed or budget missing"}
		}
		if time.Duration(elapsedMs)*time.Millisecond > time.Duration(budgetMs)*time.Millisecond {
			return RuleResult{Rule: RuleTimeout, Reason: "processing budget exceeded"}
		}
		return RuleResult{Rule: RuleTimeout, Passed: true}
	}

	p.rules[RuleRevisionCount] = func(input map[string]any) RuleResult {
		n, ok := toFloat(input["revisions"])
		if !ok {
			return RuleResult{Rule: RuleRevisionCount, Reason: "revision count missing"}
		}
		if int(n) >= p.cfg.Rules.MaxRevisions {
			return RuleResult{Rule: RuleRevisionCount, Reason: fmt.Sprintf("revision cap %d reached", p.cfg.Rules.MaxRevisions)}
		}
		return RuleResult{Rule: RuleRevisionCount, Passed: true}
	}

	p.rules[RuleLicense] = func(input map[string]any) RuleResult {
		license, _ := input["license"].(string)
		if license == "" {
			return RuleResult{Rule: RuleLicense, Reason: "license missing"}
		}
		return RuleResult{Rule: RuleLicense, Passed: true}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
