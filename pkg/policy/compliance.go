package policy

import (
	"time"
)

// Compliance violation kinds.
const (
	KindDataMinimization  = "data_minimization"
	KindConsentMissing    = "consent_missing"
	KindRetentionExceeded = "retention_exceeded"
	KindTokenInvalid      = "token_invalid"
)

// ComplianceResult reports the outcome of payload validation. Redacted is
// always usable: forbidden fields are stripped even when the payload is
// reported invalid, so processing can continue alongside the audit trail.
type ComplianceResult struct {
	Valid      bool
	Violations []Violation
	Redacted   map[string]any
}

// ValidateCompliance enforces data-minimization, consent, retention, and
// token checks for one payload. Every breach is recorded in the ledger and
// emitted as a policy-violation event.
func (p *Policy) ValidateCompliance(operation string, payload map[string]any) ComplianceResult {
	res := ComplianceResult{Valid: true, Redacted: make(map[string]any, len(payload))}
	for k, v := range payload {
		res.Redacted[k] = v
	}

	fail := func(kind string, details map[string]any) {
		details["operation"] = operation
		res.Valid = false
		res.Violations = append(res.Violations, p.recordViolation(kind, details))
	}

	for _, field := range p.cfg.Compliance.ForbiddenFields {
		if _, present := payload[field]; present {
			delete(res.Redacted, field)
			fail(KindDataMinimization, map[string]any{"field": field})
		}
	}

	for _, flag := range p.cfg.Compliance.ConsentFlags {
		v, present := payload[flag]
		if !present {
			fail(KindConsentMissing, map[string]any{"flag": flag})
			continue
		}
		if _, isBool := v.(bool); !isBool {
			fail(KindConsentMissing, map[string]any{"flag": flag, "detail": "not boolean"})
		}
	}

	if limit, ok := p.cfg.Compliance.RetentionLimits[operation]; ok {
		if age, known := payloadAge(payload, p.clock.Now()); known && age > limit.D() {
			fail(KindRetentionExceeded, map[string]any{
				"ageMs":   age.Milliseconds(),
				"limitMs": limit.D().Milliseconds(),
			})
		}
	}

	if raw, present := payload["authToken"]; present {
		if reason := validateToken(raw, p.clock.Now()); reason != "" {
			fail(KindTokenInvalid, map[string]any{"detail": reason})
		}
	}

	return res
}

// payloadAge derives the data age from the payload's dataTimestamp field
// (RFC 3339 string).
func payloadAge(payload map[string]any, now time.Time) (time.Duration, bool) {
	raw, ok := payload["dataTimestamp"].(string)
	if !ok {
		return 0, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, false
	}
	return now.Sub(ts), true
}

// validateToken checks the minimal token contract: a map carrying a
// non-empty value, an unexpired expiresAt, and a role. Returns the failure
// reason or "".
func validateToken(raw any, now time.Time) string {
	token, ok := raw.(map[string]any)
	if !ok {
		return "token is not structured"
	}
	value, _ := token["value"].(string)
	if value == "" {
		return "token value empty"
	}
	expStr, _ := token["expiresAt"].(string)
	if expStr == "" {
		return "token has no expiry"
	}
	exp, err := time.Parse(time.RFC3339, expStr)
	if err != nil {
		return "token expiry unparseable"
	}
	if !now.Before(exp) {
		return "token expired"
	}
	if role, _ := token["role"].(string); role == "" {
		return "token has no role"
	}
	return ""
}
