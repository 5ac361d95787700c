package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"proppulse-risk/internal/grading"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func downgradeNote() Notification {
	return Notification{
		PropertyID:    "PROP-001",
		RunID:         uuid.New(),
		PreviousGrade: grading.GradeGreen,
		NewGrade:      grading.GradeAmber,
		ProbNegative:  0.18,
		MeanIRR:       0.061,
		IRRP5:         -0.02,
		BreakevenYear: 6.4,
		OccurredAt:    time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestCRMTaskSinkDeliver(t *testing.T) {
	var gotAuth string
	var payload struct {
		Data []crmTask `json:"data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/crm/v2/Tasks") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode task payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink := NewCRMTaskSink(srv.URL, "tok", "https://app.example.com", time.Second, testLogger())
	if err := sink.Deliver(context.Background(), downgradeNote()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if gotAuth != "Zoho-oauthtoken tok" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if len(payload.Data) != 1 {
		t.Fatalf("payload carried %d tasks, want 1", len(payload.Data))
	}
	task := payload.Data[0]
	if !strings.HasPrefix(task.Subject, "Risk Grade Downgrade:") {
		t.Fatalf("subject = %q", task.Subject)
	}
	if !strings.Contains(task.Subject, "PROP-001") || !strings.Contains(task.Subject, "GREEN") {
		t.Fatalf("subject = %q", task.Subject)
	}
	if task.Priority != "High" || task.Status != "Not Started" {
		t.Fatalf("task = %+v", task)
	}
	if !strings.Contains(task.Description, "P(IRR<0): 18.00%") {
		t.Fatalf("description missing risk metrics: %q", task.Description)
	}
}

func TestCRMTaskSinkLabelsUpgradesAsChange(t *testing.T) {
	var payload struct {
		Data []crmTask `json:"data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode task payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	note := downgradeNote()
	note.PreviousGrade = grading.GradeAmber
	note.NewGrade = grading.GradeGreen

	sink := NewCRMTaskSink(srv.URL, "tok", "https://app.example.com", time.Second, testLogger())
	if err := sink.Deliver(context.Background(), note); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if len(payload.Data) != 1 || !strings.HasPrefix(payload.Data[0].Subject, "Risk Grade Change:") {
		t.Fatalf("payload = %+v", payload.Data)
	}
}

func TestInvestorSinkMessage(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	sink := NewInvestorSink(srv.URL, "tok", "https://app.example.com", time.Second, testLogger())
	if err := sink.Deliver(context.Background(), downgradeNote()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if payload["property_id"] != "PROP-001" || payload["new_grade"] != "amber" {
		t.Fatalf("payload = %#v", payload)
	}
	msg := payload["message"]
	for _, want := range []string{
		"\U0001F7E2", // green circle
		"\U0001F7E0", // amber circle
		"P(IRR<0): 18.0%",
		"Monitor performance closely.",
		"https://app.example.com/dashboard?property=PROP-001",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestMarketplaceSinkRepricesDowngradesOnly(t *testing.T) {
	cases := []struct {
		prev, next grading.Grade
		wantDelta  float64
	}{
		{grading.GradeGreen, grading.GradeAmber, 0.02},
		{grading.GradeAmber, grading.GradeRed, 0.02},
		{grading.GradeGreen, grading.GradeRed, 0.04},
		{grading.GradeAmber, grading.GradeGreen, 0},
		{grading.GradeRed, grading.GradeGreen, 0},
		{grading.GradeUnset, grading.GradeGreen, 0},
	}

	for _, tc := range cases {
		calls := 0
		var payload map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if !strings.HasSuffix(r.URL.Path, "/listings/PROP-001/price") {
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
		}))

		sink := NewMarketplaceSink(srv.URL, "tok", DefaultRepriceFactors(), time.Second, testLogger())
		note := downgradeNote()
		note.PreviousGrade = tc.prev
		note.NewGrade = tc.next
		if err := sink.Deliver(context.Background(), note); err != nil {
			t.Fatalf("Deliver(%s->%s): %v", tc.prev, tc.next, err)
		}
		srv.Close()

		if tc.wantDelta == 0 {
			if calls != 0 {
				t.Fatalf("%s->%s should not call the marketplace", tc.prev, tc.next)
			}
			continue
		}
		if calls != 1 {
			t.Fatalf("%s->%s made %d calls, want 1", tc.prev, tc.next, calls)
		}
		if got := payload["delta_factor"].(float64); got != tc.wantDelta {
			t.Fatalf("%s->%s delta = %v, want %v", tc.prev, tc.next, got, tc.wantDelta)
		}
	}
}

func TestSinkServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	crm := NewCRMTaskSink(srv.URL, "tok", "", time.Second, testLogger())
	if err := crm.Deliver(context.Background(), downgradeNote()); err == nil {
		t.Fatal("crm sink should surface a 500")
	}

	investor := NewInvestorSink(srv.URL, "tok", "", time.Second, testLogger())
	if err := investor.Deliver(context.Background(), downgradeNote()); err == nil {
		t.Fatal("investor sink should surface a 500")
	}

	market := NewMarketplaceSink(srv.URL, "tok", DefaultRepriceFactors(), time.Second, testLogger())
	if err := market.Deliver(context.Background(), downgradeNote()); err == nil {
		t.Fatal("marketplace sink should surface a 500")
	}
}
