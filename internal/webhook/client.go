package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jimdaga/capacity-planner/internal/reschedule"
	"github.com/jimdaga/capacity-planner/internal/validation"
)

// Client handles communication with the n8n webhook that reasons about
// reschedules.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	stubMode   bool
	validator  *validation.Validator
}

// NewClient creates a new webhook client with the given configuration.
// Responses are checked against the proposal schema before decoding.
func NewClient(baseURL, secret string, stubMode bool, validator *validation.Validator) *Client {
	return &Client{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		stubMode:   stubMode,
		validator:  validator,
	}
}

// ProposeReschedule asks the webhook for revised task timings.
func (c *Client) ProposeReschedule(ctx context.Context, req reschedule.ProposalRequest) (*reschedule.Proposal, error) {
	if c.stubMode {
		return stubProposal(req), nil
	}

	jsonData, err := json.Marshal(rescheduleRequest{Kind: "reschedule", Request: req})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reschedule", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("X-N8N-SECRET", c.secret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	var proposal reschedule.Proposal
	if c.validator != nil {
		if err := c.validator.Decode(validation.Proposal, body, &proposal); err != nil {
			return nil, fmt.Errorf("invalid proposal: %w", err)
		}
		return &proposal, nil
	}
	if err := json.Unmarshal(body, &proposal); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &proposal, nil
}

// stubProposal lays the tasks out back-to-back in the order given and defers
// whatever does not fit the window.
func stubProposal(req reschedule.ProposalRequest) *reschedule.Proposal {
	p := &reschedule.Proposal{Reasoning: "Stub proposal: remaining tasks in their current order."}
	cursor := req.WindowStart
	for _, t := range req.Tasks {
		end := cursor.Add(time.Duration(t.EstimatedMinutes) * time.Minute)
		if end.After(req.WindowEnd) {
			p.Deferred = append(p.Deferred, t.ID)
			continue
		}
		p.Tasks = append(p.Tasks, reschedule.ProposedSlot{TaskID: t.ID, Start: cursor, End: end})
		cursor = end
	}
	return p
}
