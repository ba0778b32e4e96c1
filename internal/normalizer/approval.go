package normalizer

import "strings"

// ApprovalIndicator recognizes one upstream form of the "approved" signal.
type ApprovalIndicator struct {
	Name  string
	Match func(rec Record) bool
}

// ApprovalIndicators lists the recognized forms, in evaluation order.
// Upstream variants send either an enumerated status or one of several
// independent boolean flags.
var ApprovalIndicators = []ApprovalIndicator{
	{Name: "appointment_status", Match: statusIn("appointment_status", "confirmed", "completed")},
	{Name: "status", Match: statusIn("status", "confirmed", "completed", "approved")},
	{Name: "approved", Match: flag("approved")},
	{Name: "adviser_approved", Match: flag("adviser_approved")},
	{Name: "advisor_approved", Match: flag("advisor_approved")},
}

// ResolveApproval returns the name of the first indicator that marks rec
// as approved, and false when none does.
func ResolveApproval(rec Record) (string, bool) {
	for _, ind := range ApprovalIndicators {
		if ind.Match(rec) {
			return ind.Name, true
		}
	}
	return "", false
}

func statusIn(key string, values ...string) func(Record) bool {
	return func(rec Record) bool {
		s, ok := rec[key].(string)
		if !ok {
			return false
		}
		s = strings.ToLower(strings.TrimSpace(s))
		for _, v := range values {
			if s == v {
				return true
			}
		}
		return false
	}
}

func flag(key string) func(Record) bool {
	return func(rec Record) bool {
		b, ok := rec[key].(bool)
		return ok && b
	}
}
