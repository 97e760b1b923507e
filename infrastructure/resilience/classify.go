package resilience

import "strings"

// Category is the error taxonomy from the error recovery layer: network,
// api, data, validation, rate_limit, authentication, timeout, system, or
// unknown.
type Category string

const (
	CategoryNetwork        Category = "network"
	CategoryRateLimit      Category = "rate_limit"
	CategoryAuthentication Category = "authentication"
	CategoryAPI            Category = "api"
	CategoryData           Category = "data"
	CategorySystem         Category = "system"
	CategoryTimeout        Category = "timeout"
	CategoryUnknown        Category = "unknown"
)

// Severity ranks how urgently a classified error needs attention.
type Severity string

const (
	SeverityLow       Severity = "low"
	SeverityMedium    Severity = "medium"
	SeverityHigh      Severity = "high"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Action is the decision the error recovery layer hands back to a caller.
type Action string

const (
	ActionNotify      Action = "notify"
	ActionWaitAndRetry Action = "wait_and_retry"
	ActionRetry       Action = "retry"
	ActionAbort       Action = "abort"
	ActionSkip        Action = "skip"
)

// Classification is the (category, severity) pair produced by Classify.
type Classification struct {
	Category Category
	Severity Severity
}

// Classify inspects an error's message (and, when available, an HTTP status
// code) against the ordered rule list from the error recovery layer and
// returns the first matching (category, severity).
//
// statusCode may be 0 when the error did not originate from an HTTP call.
func Classify(err error, statusCode int) Classification {
	var msg string
	if err != nil {
		msg = strings.ToLower(err.Error())
	} else if statusCode == 0 {
		return Classification{Category: CategoryUnknown, Severity: SeverityMedium}
	}

	switch {
	case containsAny(msg, "network", "connection", "dns", "socket", "timeout"):
		if containsAny(msg, "timeout") && !containsAny(msg, "network", "connection", "dns", "socket") {
			return Classification{Category: CategoryTimeout, Severity: SeverityMedium}
		}
		return Classification{Category: CategoryNetwork, Severity: SeverityMedium}
	case statusCode == 429 || containsAny(msg, "rate limit", "too many requests", "throttled"):
		return Classification{Category: CategoryRateLimit, Severity: SeverityLow}
	case statusCode == 401 || statusCode == 403 || containsAny(msg, "unauthorized", "forbidden", "authentication"):
		return Classification{Category: CategoryAuthentication, Severity: SeverityHigh}
	case statusCode >= 400:
		return Classification{Category: CategoryAPI, Severity: SeverityMedium}
	case containsAny(msg, "validation", "schema", "malformed", "parse"):
		return Classification{Category: CategoryData, Severity: SeverityMedium}
	case containsAny(msg, "memory", "disk", "permission", "file not found", "no such file"):
		return Classification{Category: CategorySystem, Severity: SeverityHigh}
	case containsAny(msg, "timeout"):
		return Classification{Category: CategoryTimeout, Severity: SeverityMedium}
	default:
		return Classification{Category: CategoryUnknown, Severity: SeverityMedium}
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// SelectAction maps a Classification to the recovery action the caller
// should take. Severity overrides category except for the
// authentication+high special case, which aborts rather than merely
// notifying.
func SelectAction(c Classification) Action {
	switch {
	case c.Severity == SeverityCritical || c.Severity == SeverityEmergency:
		return ActionNotify
	case c.Category == CategoryRateLimit:
		return ActionWaitAndRetry
	case c.Category == CategoryAuthentication && c.Severity == SeverityHigh:
		return ActionAbort
	case c.Category == CategoryNetwork, c.Category == CategoryAPI, c.Category == CategoryTimeout:
		return ActionRetry
	case c.Category == CategoryData:
		return ActionRetry
	case c.Category == CategorySystem:
		return ActionNotify
	default:
		return ActionSkip
	}
}

// IsNeverRetried reports whether err/classification combination must never
// be retried regardless of the action SelectAction would otherwise pick:
// authentication errors of critical severity, and data errors whose message
// mentions "malformed".
func IsNeverRetried(err error, c Classification) bool {
	if c.Category == CategoryAuthentication && c.Severity == SeverityCritical {
		return true
	}
	if c.Category == CategoryData && err != nil && strings.Contains(strings.ToLower(err.Error()), "malformed") {
		return true
	}
	return false
}
