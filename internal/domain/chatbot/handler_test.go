package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestHandler(gen *fakeGenerator) (*Handler, *fakeLookup, *echo.Echo) {
	svc, _, lookup, _ := newTestService(gen)
	return NewHandler(svc), lookup, echo.New()
}

func postJSON(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/chatbot/respond", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeReply(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body replyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return body.Reply
}

func TestHandler_Respond(t *testing.T) {
	h, _, e := newTestHandler(&fakeGenerator{reply: "Drink water."})

	c, rec := postJSON(e, `{"message":"What should I drink?","patientId":"p1"}`)
	if err := h.Respond(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := decodeReply(t, rec); got != "Drink water." {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestHandler_Respond_WithContext(t *testing.T) {
	h, _, e := newTestHandler(&fakeGenerator{})

	c, rec := postJSON(e, `{"message":"Am I at risk?","patientId":"p1","context":{"prediction":1,"model":"voting_ensemble","probability":0.91}}`)
	if err := h.Respond(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := decodeReply(t, rec)
	if !strings.Contains(got, "voting_ensemble") || !strings.Contains(got, "91.0%") {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestHandler_Respond_WithStringContext(t *testing.T) {
	h, _, e := newTestHandler(&fakeGenerator{})

	c, rec := postJSON(e, `{"message":"Am I at risk?","patientId":"p1","context":{"prediction":"1","model":"xgboost","probability":"0.91"}}`)
	if err := h.Respond(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeReply(t, rec)
	if !strings.HasPrefix(got, "⚠️ You may be at risk") || !strings.Contains(got, "xgboost") || !strings.Contains(got, "91.0%") {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestHandler_Respond_NullPredictionIgnoresStoredDiagnosis(t *testing.T) {
	h, lookup, e := newTestHandler(&fakeGenerator{})
	lookup.snaps["p1"] = &Snapshot{PatientID: "p1", Prediction: 1, Model: "catboost", Probability: floatPtr(0.9)}

	c, rec := postJSON(e, `{"message":"Am I at risk?","patientId":"p1","context":{"prediction":null}}`)
	if err := h.Respond(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := decodeReply(t, rec)
	if !strings.HasPrefix(got, "✅ You are not at risk") || strings.Contains(got, "catboost") {
		t.Errorf("unexpected reply %q", got)
	}
	if lookup.calls != 0 {
		t.Errorf("expected the stored diagnosis to be skipped, got %d lookups", lookup.calls)
	}
}

func TestHandler_Respond_EmptyMessage(t *testing.T) {
	h, _, e := newTestHandler(&fakeGenerator{})

	c, rec := postJSON(e, `{"message":"   "}`)
	if err := h.Respond(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if got := decodeReply(t, rec); got != EmptyMessageReply {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestHandler_Respond_PersistenceFailure(t *testing.T) {
	store := failingStore{NewMemoryStore()}
	responder := NewLanguageResponder(&fakeGenerator{reply: "hi"}, store, DefaultContextWindow, zerolog.Nop())
	h := NewHandler(NewService(store, newFakeLookup(), responder, zerolog.Nop()))
	e := echo.New()

	c, rec := postJSON(e, `{"message":"hello","patientId":"p1"}`)
	if err := h.Respond(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if got := decodeReply(t, rec); got != ErrorReply {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestHandler_Respond_LookupFailure(t *testing.T) {
	h, lookup, e := newTestHandler(&fakeGenerator{})
	lookup.err = errors.New("db down")

	c, rec := postJSON(e, `{"message":"my risk?","patientId":"p1"}`)
	if err := h.Respond(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func getWithPatient(e *echo.Echo, method, patientID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("patientId")
	c.SetParamValues(patientID)
	return c, rec
}

func TestHandler_HistoryAndClear(t *testing.T) {
	h, _, e := newTestHandler(&fakeGenerator{reply: "Sure."})

	c, _ := postJSON(e, `{"message":"Tell me about sodium","patientId":"john_doe"}`)
	if err := h.Respond(c); err != nil {
		t.Fatalf("respond: %v", err)
	}

	c, rec := getWithPatient(e, http.MethodGet, "john_doe")
	if err := h.History(c); err != nil {
		t.Fatalf("history: %v", err)
	}
	var history []Pair
	json.Unmarshal(rec.Body.Bytes(), &history)
	if len(history) != 1 || history[0].Reply != "Sure." {
		t.Fatalf("unexpected history: %s", rec.Body.String())
	}

	c, rec = getWithPatient(e, http.MethodDelete, "john_doe")
	if err := h.Clear(c); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("unexpected clear body: %s", rec.Body.String())
	}

	c, rec = getWithPatient(e, http.MethodGet, "john_doe")
	if err := h.History(c); err != nil {
		t.Fatalf("history: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list after clear, got %s", rec.Body.String())
	}
}

func TestHandler_History_UnknownPatient(t *testing.T) {
	h, _, e := newTestHandler(&fakeGenerator{})

	c, rec := getWithPatient(e, http.MethodGet, "nobody")
	if err := h.History(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected 200 with [], got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_Stats(t *testing.T) {
	h, _, e := newTestHandler(&fakeGenerator{reply: "ok"})

	c, _ := getWithPatient(e, http.MethodGet, "p1")
	err := h.Stats(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	if _, err := h.svc.Respond(context.Background(), "p1", "hello", nil); err != nil {
		t.Fatalf("respond: %v", err)
	}
	c, rec := getWithPatient(e, http.MethodGet, "p1")
	if err := h.Stats(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var st Stats
	json.Unmarshal(rec.Body.Bytes(), &st)
	if st.TotalMessages != 2 || st.UserMessages != 1 || st.AssistantMessages != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
}
