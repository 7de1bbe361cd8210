package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jimdaga/capacity-planner/internal/reschedule"
	"github.com/jimdaga/capacity-planner/internal/validation"
)

var windowStart = time.Date(2026, 4, 6, 14, 0, 0, 0, time.UTC)

func sampleRequest() reschedule.ProposalRequest {
	return reschedule.ProposalRequest{
		PlanID:           42,
		WindowStart:      windowStart,
		WindowEnd:        windowStart.Add(2 * time.Hour),
		AvailableMinutes: 120,
		Tasks: []reschedule.ProposalTask{
			{ID: 1, Title: "a", EstimatedMinutes: 60},
			{ID: 2, Title: "b", EstimatedMinutes: 90},
			{ID: 3, Title: "c", EstimatedMinutes: 30},
		},
	}
}

func newValidator(t *testing.T) *validation.Validator {
	t.Helper()
	v, err := validation.New()
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestProposeReschedule_PostsRequest(t *testing.T) {
	var gotSecret, gotPath string
	var gotBody rescheduleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-N8N-SECRET")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"tasks": [{"task_id": 1, "start": "2026-04-06T14:00:00Z", "end": "2026-04-06T15:00:00Z"}],
			"deferred_task_ids": [2],
			"reasoning": "Keep the short task"
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "s3cret", false, newValidator(t))
	p, err := c.ProposeReschedule(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("ProposeReschedule: %v", err)
	}
	if gotSecret != "s3cret" || gotPath != "/reschedule" {
		t.Errorf("secret=%q path=%q", gotSecret, gotPath)
	}
	if gotBody.Kind != "reschedule" || gotBody.Request.PlanID != 42 {
		t.Errorf("body = %+v", gotBody)
	}
	if len(p.Tasks) != 1 || !p.Tasks[0].End.Equal(windowStart.Add(time.Hour)) || p.Reasoning != "Keep the short task" {
		t.Errorf("proposal = %+v", p)
	}
}

func TestProposeReschedule_RejectsMalformedProposal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tasks": [{"task_id": "one"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "s", false, newValidator(t))
	if _, err := c.ProposeReschedule(context.Background(), sampleRequest()); err == nil || !strings.Contains(err.Error(), "invalid proposal") {
		t.Errorf("err = %v, want invalid proposal", err)
	}
}

func TestProposeReschedule_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "s", false, nil)
	if _, err := c.ProposeReschedule(context.Background(), sampleRequest()); err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v, want status error", err)
	}
}

func TestProposeReschedule_HonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c := NewClient(srv.URL, "s", false, nil)
	if _, err := c.ProposeReschedule(ctx, sampleRequest()); err == nil {
		t.Error("expected error after deadline")
	}
}

func TestProposeReschedule_StubMode(t *testing.T) {
	c := NewClient("", "", true, nil)
	p, err := c.ProposeReschedule(context.Background(), sampleRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Tasks) != 2 || p.Tasks[0].TaskID != 1 || p.Tasks[1].TaskID != 3 {
		t.Errorf("stub tasks = %+v, want 1 and 3", p.Tasks)
	}
	if len(p.Deferred) != 1 || p.Deferred[0] != 2 {
		t.Errorf("stub deferred = %v, want [2]", p.Deferred)
	}
	if !p.Tasks[1].Start.Equal(windowStart.Add(time.Hour)) {
		t.Errorf("stub slots not back-to-back: %+v", p.Tasks)
	}
}
