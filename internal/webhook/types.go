// Package webhook provides the n8n webhook integration that proposes
// reschedules for a plan.
package webhook

import "github.com/jimdaga/capacity-planner/internal/reschedule"

// rescheduleRequest is the body posted to {baseURL}/reschedule.
type rescheduleRequest struct {
	Kind    string                     `json:"kind"`
	Request reschedule.ProposalRequest `json:"request"`
}

// maxResponseBytes bounds how much of a webhook response is read.
const maxResponseBytes = 1 << 20
