package mlapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPredict_SendsModelAndInput(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{
			"result": 1,
			"prediction": "High Risk",
			"probability": 0.91,
			"probabilities": {"low_risk": 0.09, "high_risk": 0.91},
			"model_used": "voting_ensemble",
			"model_display_name": "Voting Ensemble",
			"metrics": {"accuracy": 0.7342},
			"confidence": 0.91
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	p, err := c.Predict(context.Background(), "", map[string]int{"age_years": 55})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got["model"] != DefaultModel {
		t.Errorf("expected default model, got %v", got["model"])
	}
	input, _ := got["inputData"].(map[string]interface{})
	if input["age_years"] != float64(55) {
		t.Errorf("expected inputData to be forwarded, got %v", got["inputData"])
	}

	if p.Result != 1 || p.RiskLevel != "High Risk" {
		t.Errorf("unexpected prediction: %+v", p)
	}
	if p.Probability == nil || *p.Probability != 0.91 {
		t.Errorf("expected probability 0.91, got %v", p.Probability)
	}
	if p.Probabilities.HighRisk == nil || *p.Probabilities.HighRisk != 0.91 {
		t.Errorf("expected high_risk 0.91, got %v", p.Probabilities.HighRisk)
	}
	if p.ModelDisplayName != "Voting Ensemble" {
		t.Errorf("unexpected display name %q", p.ModelDisplayName)
	}
}

func TestPredict_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"Missing input fields: ['gender']"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Predict(context.Background(), "xgboost", nil)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %T (%v)", err, err)
	}
	if se.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", se.StatusCode)
	}
	if se.Message != "Missing input fields: ['gender']" {
		t.Errorf("unexpected message %q", se.Message)
	}
}

func TestModelMetrics_NotFoundPassthrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/model-metrics/unknown_model" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Model metrics not found for 'unknown_model'","available_models":["xgboost"]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).ModelMetrics(context.Background(), "unknown_model")

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	if len(se.Body) == 0 {
		t.Error("expected upstream body to be kept")
	}
}

func TestProxies_ReturnRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			w.Write([]byte(`{"total_models":7}`))
		case "/model-comparison":
			w.Write([]byte(`{"best_model":"catboost"}`))
		case "/health":
			w.Write([]byte(`{"status":"healthy"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() (json.RawMessage, error)
		want string
	}{
		{"models", func() (json.RawMessage, error) { return c.Models(ctx) }, `{"total_models":7}`},
		{"comparison", func() (json.RawMessage, error) { return c.ModelComparison(ctx) }, `{"best_model":"catboost"}`},
		{"health", func() (json.RawMessage, error) { return c.Health(ctx) }, `{"status":"healthy"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.call()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(raw) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, raw)
			}
		})
	}
}

func TestDo_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second).Models(context.Background()); err == nil {
		t.Error("expected error for non-JSON body")
	}
}

func TestDo_ConnectionRefused(t *testing.T) {
	// Grab a free port and close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewClient("http://"+addr, time.Second).Health(context.Background())
	if !errors.Is(err, ErrServiceDown) {
		t.Errorf("expected ErrServiceDown, got %v", err)
	}
}

func TestObserver_Called(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var endpoint string
	var ok = true
	c := NewClient(srv.URL, time.Second, WithObserver(func(e string, success bool, d time.Duration) {
		endpoint, ok = e, success
	}))
	c.Health(context.Background())

	if endpoint != "health" {
		t.Errorf("expected endpoint health, got %q", endpoint)
	}
	if ok {
		t.Error("expected failure to be observed")
	}
}
