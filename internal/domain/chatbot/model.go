package chatbot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation. Both halves of a chat turn share
// a PairID.
type Message struct {
	ID        uuid.UUID `json:"id"`
	PairID    uuid.UUID `json:"pairId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the ordered message log of one patient.
type Conversation struct {
	PatientID    string    `json:"patientId"`
	Messages     []Message `json:"messages"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Pair is one user message and the reply it received.
type Pair struct {
	Message   string    `json:"message"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Stats struct {
	TotalMessages     int       `json:"totalMessages"`
	UserMessages      int       `json:"userMessages"`
	AssistantMessages int       `json:"assistantMessages"`
	FirstMessage      time.Time `json:"firstMessage"`
	LastMessage       time.Time `json:"lastMessage"`
	LastActive        time.Time `json:"lastActive"`
}

// Snapshot is the part of a stored diagnosis the chatbot reads.
type Snapshot struct {
	PatientID   string
	Prediction  int
	Probability *float64
	Model       string
	Timestamp   time.Time
}

// RiskContext is a diagnosis summary sent by the client with a message. When
// Prediction is set it is used instead of the stored diagnosis.
type RiskContext struct {
	Prediction  *int     `json:"prediction"`
	Model       string   `json:"model"`
	Probability *float64 `json:"probability"`
}

// UnmarshalJSON accepts prediction and probability as numbers or numeric
// strings. An explicit null prediction still counts as a supplied context and
// reads as not at risk; only an absent prediction defers to the stored
// diagnosis.
func (r *RiskContext) UnmarshalJSON(data []byte) error {
	var raw struct {
		Prediction  json.RawMessage `json:"prediction"`
		Model       string          `json:"model"`
		Probability json.RawMessage `json:"probability"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Model = raw.Model
	r.Prediction = nil
	r.Probability = nil

	if raw.Prediction != nil {
		f, ok, err := lenientNumber(raw.Prediction)
		if err != nil {
			return fmt.Errorf("context.prediction: %w", err)
		}
		p := 0
		if ok {
			p = int(f)
		}
		r.Prediction = &p
	}

	f, ok, err := lenientNumber(raw.Probability)
	if err != nil {
		return fmt.Errorf("context.probability: %w", err)
	}
	if ok {
		r.Probability = &f
	}
	return nil
}

// lenientNumber parses a JSON number or numeric string. ok is false for
// absent, null or empty values.
func lenientNumber(v json.RawMessage) (f float64, ok bool, err error) {
	s := strings.TrimSpace(strings.Trim(string(v), `"`))
	if s == "" || s == "null" {
		return 0, false, nil
	}
	f, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%q is not a number", s)
	}
	return f, true, nil
}

// pairs rebuilds the user/reply pairs of a message log by pair id, in the
// order each pair was started. Messages without a pair id and pairs missing
// either half are skipped.
func pairs(msgs []Message) []Pair {
	type partial struct {
		pair        Pair
		user, reply bool
	}
	var order []uuid.UUID
	byID := make(map[uuid.UUID]*partial)
	for _, m := range msgs {
		if m.PairID == uuid.Nil {
			continue
		}
		p, ok := byID[m.PairID]
		if !ok {
			p = &partial{}
			byID[m.PairID] = p
			order = append(order, m.PairID)
		}
		switch m.Role {
		case RoleUser:
			p.pair.Message = m.Content
			p.pair.CreatedAt = m.Timestamp
			p.user = true
		case RoleAssistant:
			p.pair.Reply = m.Content
			p.pair.UpdatedAt = m.Timestamp
			p.reply = true
		}
	}

	out := make([]Pair, 0, len(order))
	for _, id := range order {
		if p := byID[id]; p.user && p.reply {
			out = append(out, p.pair)
		}
	}
	return out
}
