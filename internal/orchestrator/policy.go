package orchestrator

import (
	"github.com/chronoplan/scheduler/internal/model"
)

// PolicyDecision is the outcome of a threshold/refusal evaluation.
type PolicyDecision struct {
	Cancel bool
	Reason string
}

// EvaluatePolicy applies the cancellation/threshold rules to the current
// invite responses. Responses can change concurrently, so callers re-check
// both before submission and before application.
func EvaluatePolicy(m *model.MeetingAssist, invites []*model.MeetingAssistInvite) PolicyDecision {
	if m.CancelIfAnyRefuse {
		for _, i := range invites {
			if i.Status == model.InviteDeclined {
				return PolicyDecision{Cancel: true, Reason: "an attendee declined and cancelIfAnyRefuse is set"}
			}
		}
	}
	if m.MinThresholdCount > 0 && m.AttendeeRespondedCount < m.MinThresholdCount {
		return PolicyDecision{Cancel: true, Reason: "attendee responses below minimum threshold"}
	}
	return PolicyDecision{}
}
