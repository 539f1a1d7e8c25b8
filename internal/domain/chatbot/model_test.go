package chatbot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPairs_GroupsByPairID(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p1, p2 := uuid.New(), uuid.New()
	msgs := []Message{
		{PairID: p1, Role: RoleUser, Content: "q1", Timestamp: at},
		{PairID: p2, Role: RoleUser, Content: "q2", Timestamp: at.Add(time.Second)},
		{PairID: p1, Role: RoleAssistant, Content: "a1", Timestamp: at.Add(2 * time.Second)},
		{PairID: p2, Role: RoleAssistant, Content: "a2", Timestamp: at.Add(3 * time.Second)},
	}

	got := pairs(msgs)
	if len(got) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(got))
	}
	if got[0].Message != "q1" || got[0].Reply != "a1" {
		t.Errorf("unexpected first pair: %+v", got[0])
	}
	if got[1].Message != "q2" || got[1].Reply != "a2" {
		t.Errorf("unexpected second pair: %+v", got[1])
	}
	if !got[0].UpdatedAt.Equal(at.Add(2 * time.Second)) {
		t.Errorf("expected updatedAt from the reply, got %v", got[0].UpdatedAt)
	}
}

func TestPairs_SkipsIncompleteAndUnpaired(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	msgs := []Message{
		{Role: RoleUser, Content: "legacy"},
		{Role: RoleAssistant, Content: "legacy reply"},
		{PairID: p1, Role: RoleUser, Content: "orphan"},
		{PairID: p2, Role: RoleAssistant, Content: "reply first"},
		{PairID: p2, Role: RoleUser, Content: "question second"},
	}

	got := pairs(msgs)
	if len(got) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(got))
	}
	if got[0].Message != "question second" || got[0].Reply != "reply first" {
		t.Errorf("unexpected pair: %+v", got[0])
	}
}

func TestPairs_Empty(t *testing.T) {
	got := pairs(nil)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestRiskContext_Unmarshal(t *testing.T) {
	tests := []struct {
		body     string
		wantPred *int
		wantProb *float64
	}{
		{`{"prediction":1,"model":"xgboost","probability":0.7}`, intPtr(1), floatPtr(0.7)},
		{`{"prediction":"0","model":"xgboost"}`, intPtr(0), nil},
		{`{"prediction":"1","model":"xgboost","probability":"0.91"}`, intPtr(1), floatPtr(0.91)},
		{`{"prediction":1,"probability":null}`, intPtr(1), nil},
		{`{"prediction":null}`, intPtr(0), nil},
		{`{"model":"xgboost"}`, nil, nil},
	}
	for _, tt := range tests {
		var rc RiskContext
		if err := json.Unmarshal([]byte(tt.body), &rc); err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.body, err)
		}
		if (rc.Prediction == nil) != (tt.wantPred == nil) || (rc.Prediction != nil && *rc.Prediction != *tt.wantPred) {
			t.Errorf("%s: unexpected prediction %v", tt.body, rc.Prediction)
		}
		if (rc.Probability == nil) != (tt.wantProb == nil) || (rc.Probability != nil && *rc.Probability != *tt.wantProb) {
			t.Errorf("%s: unexpected probability %v", tt.body, rc.Probability)
		}
	}
}

func TestRiskContext_UnmarshalRejectsGarbage(t *testing.T) {
	var rc RiskContext
	if err := json.Unmarshal([]byte(`{"prediction":"yes"}`), &rc); err == nil {
		t.Error("expected error for non-numeric prediction")
	}
	if err := json.Unmarshal([]byte(`{"prediction":1,"probability":"high"}`), &rc); err == nil {
		t.Error("expected error for non-numeric probability")
	}
}
