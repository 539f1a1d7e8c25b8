package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrEmptyMessage is returned for blank chat input.
var ErrEmptyMessage = errors.New("message is empty")

// UnknownPatient is used when a turn arrives without a patient id.
const UnknownPatient = "unknown"

// DiagnosisLookup returns the newest diagnosis of a patient, or nil when
// there is none.
type DiagnosisLookup interface {
	LatestSnapshot(ctx context.Context, patientID string) (*Snapshot, error)
}

// Responder answers open-ended messages.
type Responder interface {
	Respond(ctx context.Context, patientID, message string, risk *RiskContext) Outcome
}

type Option func(*Service)

// WithTurnObserver registers a callback run after every turn with the
// strategy used and its outcome: ok, degraded, rejected or error.
func WithTurnObserver(fn func(strategy, outcome string)) Option {
	return func(s *Service) { s.observe = fn }
}

type Service struct {
	store     Store
	lookup    DiagnosisLookup
	responder Responder
	locks     *turnLocks
	logger    zerolog.Logger
	observe   func(strategy, outcome string)
	now       func() time.Time
}

func NewService(store Store, lookup DiagnosisLookup, responder Responder, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		lookup:    lookup,
		responder: responder,
		locks:     newTurnLocks(),
		logger:    logger.With().Str("component", "chatbot").Logger(),
		observe:   func(string, string) {},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolveSnapshot prefers a client supplied prediction over storage.
func (s *Service) resolveSnapshot(ctx context.Context, patientID string, risk *RiskContext) (*Snapshot, error) {
	if risk != nil && risk.Prediction != nil {
		model := risk.Model
		if model == "" {
			model = unknownModel
		}
		return &Snapshot{
			PatientID:   patientID,
			Prediction:  *risk.Prediction,
			Probability: risk.Probability,
			Model:       model,
		}, nil
	}
	return s.lookup.LatestSnapshot(ctx, patientID)
}

// Respond handles one chat turn: pick a strategy, compute the reply, then
// store the message and reply as one pair.
func (s *Service) Respond(ctx context.Context, patientID, message string, risk *RiskContext) (string, error) {
	if strings.TrimSpace(message) == "" {
		s.observe("none", "rejected")
		return "", ErrEmptyMessage
	}
	if patientID == "" {
		patientID = UnknownPatient
	}

	unlock := s.locks.Lock(patientID)
	defer unlock()

	intent := ClassifyIntent(message)
	log := s.logger.With().Str("patient_id", patientID).Str("strategy", intent.String()).Logger()
	log.Debug().Msg("dispatching chat turn")

	var reply string
	outcome := "ok"
	switch intent {
	case IntentRisk:
		snap, err := s.resolveSnapshot(ctx, patientID, risk)
		if err != nil {
			log.Error().Err(err).Msg("failed to load latest diagnosis")
			s.observe(intent.String(), "error")
			return "", fmt.Errorf("load latest diagnosis: %w", err)
		}
		reply = RiskNarrative(snap)
	default:
		out := s.responder.Respond(ctx, patientID, message, risk)
		if out.IsDegraded() {
			outcome = "degraded"
		}
		reply = out.Text()
	}

	now := s.now().UTC()
	pairID := uuid.New()
	user := Message{ID: uuid.New(), PairID: pairID, Role: RoleUser, Content: message, Timestamp: now}
	assistant := Message{ID: uuid.New(), PairID: pairID, Role: RoleAssistant, Content: reply, Timestamp: now}
	if err := s.store.AppendPair(ctx, patientID, user, assistant); err != nil {
		log.Error().Err(err).Msg("failed to store chat turn")
		s.observe(intent.String(), "error")
		return "", fmt.Errorf("store chat turn: %w", err)
	}

	s.observe(intent.String(), outcome)
	return reply, nil
}

// History returns the stored turns of a patient; unknown patients get an
// empty list.
func (s *Service) History(ctx context.Context, patientID string) ([]Pair, error) {
	c, err := s.store.Find(ctx, patientID)
	if errors.Is(err, ErrConversationNotFound) {
		return []Pair{}, nil
	}
	if err != nil {
		return nil, err
	}
	return pairs(c.Messages), nil
}

func (s *Service) Clear(ctx context.Context, patientID string) error {
	return s.store.Clear(ctx, patientID)
}

func (s *Service) Stats(ctx context.Context, patientID string) (*Stats, error) {
	c, err := s.store.Find(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(c.Messages) == 0 {
		return nil, ErrConversationNotFound
	}

	st := &Stats{
		TotalMessages: len(c.Messages),
		FirstMessage:  c.Messages[0].Timestamp,
		LastMessage:   c.Messages[len(c.Messages)-1].Timestamp,
		LastActive:    c.LastActiveAt,
	}
	for _, m := range c.Messages {
		switch m.Role {
		case RoleUser:
			st.UserMessages++
		case RoleAssistant:
			st.AssistantMessages++
		}
	}
	return st, nil
}
