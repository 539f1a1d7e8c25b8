package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cardiorisk/cardiorisk/internal/platform/mlapi"
)

// ErrInvalidInput marks client errors; handlers answer 400.
var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// MLClient is the subset of mlapi.Client the service uses.
type MLClient interface {
	Predict(ctx context.Context, model string, input interface{}) (*mlapi.Prediction, error)
	Models(ctx context.Context) (json.RawMessage, error)
	ModelComparison(ctx context.Context) (json.RawMessage, error)
	ModelMetrics(ctx context.Context, model string) (json.RawMessage, error)
	Health(ctx context.Context) (json.RawMessage, error)
}

// ConversationPurger drops a patient's chat history when their diagnosis
// is deleted.
type ConversationPurger interface {
	DeleteConversation(ctx context.Context, patientID string) error
}

type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Option func(*Service)

func WithConversationPurger(p ConversationPurger) Option {
	return func(s *Service) { s.purger = p }
}

func WithTxRunner(run TxRunner) Option {
	return func(s *Service) {
		s.runTx = run
		s.atomicDelete = true
	}
}

type Service struct {
	repo   Repository
	ml     MLClient
	purger ConversationPurger
	runTx  TxRunner
	logger zerolog.Logger
	now    func() time.Time

	// atomicDelete is set when the purge shares the delete's transaction.
	atomicDelete bool
}

func NewService(repo Repository, ml MLClient, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		ml:     ml,
		logger: logger.With().Str("component", "diagnosis").Logger(),
		now:    time.Now,
		runTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validatePatientData(p *PatientData) error {
	if p == nil {
		return invalid("patientData is required")
	}
	switch {
	case p.Age <= 0 || p.Age > 120:
		return invalid("age must be between 1 and 120")
	case p.Gender != 1 && p.Gender != 2:
		return invalid("gender must be 1 or 2")
	case p.Height <= 0:
		return invalid("height must be positive")
	case p.Weight <= 0:
		return invalid("weight must be positive")
	case p.APHi <= 0 || p.APLo <= 0:
		return invalid("blood pressure values must be positive")
	case p.Cholesterol < 1 || p.Cholesterol > 3:
		return invalid("cholesterol must be 1, 2 or 3")
	case p.Gluc < 1 || p.Gluc > 3:
		return invalid("gluc must be 1, 2 or 3")
	case !isFlag(p.Smoke) || !isFlag(p.Alco) || !isFlag(p.Active):
		return invalid("smoke, alco and active must be 0 or 1")
	}
	return nil
}

func isFlag(v int) bool { return v == 0 || v == 1 }

func resolveModel(name string) (string, error) {
	if name == "" {
		return mlapi.DefaultModel, nil
	}
	if !IsKnownModel(name) {
		return "", invalid("unknown model %q", name)
	}
	return name, nil
}

type PredictRequest struct {
	PatientData   *PatientData `json:"patientData"`
	SelectedModel string       `json:"selectedModel"`
	PatientID     string       `json:"patientId"`
	PatientName   string       `json:"patientName"`
}

type PredictionSummary struct {
	Result        int           `json:"result"`
	RiskLevel     string        `json:"riskLevel"`
	Probability   *float64      `json:"probability"`
	Confidence    *float64      `json:"confidence"`
	Probabilities Probabilities `json:"probabilities"`
}

// ModelInfo carries the model's evaluation metrics as "NN.NN%" strings.
type ModelInfo struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"displayName"`
	Metrics     map[string]interface{} `json:"metrics"`
	Accuracy    *string                `json:"accuracy"`
	Precision   *string                `json:"precision"`
	Recall      *string                `json:"recall"`
	F1Score     *string                `json:"f1_score"`
	AUC         *string                `json:"auc"`
}

type PredictResult struct {
	Success     bool              `json:"success"`
	DiagnosisID uuid.UUID         `json:"diagnosisId"`
	Prediction  PredictionSummary `json:"prediction"`
	ModelInfo   ModelInfo         `json:"modelInfo"`
	Timestamp   time.Time         `json:"timestamp"`
}

func percent(metrics map[string]interface{}, key string) *string {
	v, ok := metrics[key].(float64)
	if !ok {
		return nil
	}
	s := fmt.Sprintf("%.2f%%", v*100)
	return &s
}

func newModelInfo(model string, p *mlapi.Prediction) ModelInfo {
	return ModelInfo{
		Name:        model,
		DisplayName: p.ModelDisplayName,
		Metrics:     p.Metrics,
		Accuracy:    percent(p.Metrics, "accuracy"),
		Precision:   percent(p.Metrics, "precision"),
		Recall:      percent(p.Metrics, "recall"),
		F1Score:     percent(p.Metrics, "f1"),
		AUC:         percent(p.Metrics, "auc"),
	}
}

// Predict derives features, asks the ML service for a prediction and stores
// the result as a new diagnosis.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (*PredictResult, error) {
	if err := validatePatientData(req.PatientData); err != nil {
		return nil, err
	}
	model, err := resolveModel(req.SelectedModel)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	patientID := strings.TrimSpace(req.PatientID)
	name := strings.TrimSpace(req.PatientName)
	switch {
	case patientID == "" && name != "":
		patientID = NormalizePatientID(name)
	case patientID == "":
		patientID = fmt.Sprintf("patient_%d", now.UnixMilli())
	}
	if name == "" {
		name = patientID
	}

	features := DeriveFeatures(*req.PatientData)
	pred, err := s.ml.Predict(ctx, model, features)
	if err != nil {
		s.logger.Warn().Err(err).Str("model", model).Msg("ml prediction failed")
		return nil, err
	}

	d := &Diagnosis{
		PatientID:   patientID,
		PatientName: name,
		InputData:   *req.PatientData,
		Features:    &features,
		Prediction:  pred.Result,
		Probability: pred.Probability,
		Probabilities: Probabilities{
			LowRisk:  pred.Probabilities.LowRisk,
			HighRisk: pred.Probabilities.HighRisk,
		},
		Confidence:       pred.Confidence,
		Model:            model,
		ModelDisplayName: pred.ModelDisplayName,
		Metrics:          pred.Metrics,
		RiskLevel:        pred.RiskLevel,
		Timestamp:        now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID).Msg("failed to save diagnosis")
		return nil, fmt.Errorf("save diagnosis: %w", err)
	}

	return &PredictResult{
		Success:     true,
		DiagnosisID: d.ID,
		Prediction: PredictionSummary{
			Result:        pred.Result,
			RiskLevel:     pred.RiskLevel,
			Probability:   pred.Probability,
			Confidence:    pred.Confidence,
			Probabilities: d.Probabilities,
		},
		ModelInfo: newModelInfo(model, pred),
		Timestamp: now,
	}, nil
}

type BatchPatient struct {
	ID   string       `json:"id"`
	Data *PatientData `json:"data"`
}

type BatchRequest struct {
	Patients      []BatchPatient `json:"patients"`
	SelectedModel string         `json:"selectedModel"`
}

type BatchPrediction struct {
	PatientIndex int      `json:"patientIndex"`
	PatientID    string   `json:"patientId"`
	Prediction   int      `json:"prediction"`
	RiskLevel    string   `json:"riskLevel"`
	Probability  *float64 `json:"probability"`
	Confidence   *float64 `json:"confidence"`
}

type BatchError struct {
	PatientIndex int    `json:"patientIndex"`
	PatientID    string `json:"patientId"`
	Error        string `json:"error"`
}

type BatchResult struct {
	Success               bool              `json:"success"`
	TotalPatients         int               `json:"totalPatients"`
	SuccessfulPredictions int               `json:"successfulPredictions"`
	FailedPredictions     int               `json:"failedPredictions"`
	Predictions           []BatchPrediction `json:"predictions"`
	Errors                []BatchError      `json:"errors"`
	Model                 string            `json:"model"`
}

// BatchPredict runs one prediction per patient in order. Per-patient
// failures are collected rather than aborting the batch; nothing is stored.
func (s *Service) BatchPredict(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.Patients) == 0 {
		return nil, invalid("patients array is required")
	}
	model, err := resolveModel(req.SelectedModel)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{
		Success:       true,
		TotalPatients: len(req.Patients),
		Predictions:   []BatchPrediction{},
		Errors:        []BatchError{},
		Model:         model,
	}
	for i, p := range req.Patients {
		id := p.ID
		if id == "" {
			id = fmt.Sprintf("batch_patient_%d", i)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := validatePatientData(p.Data); err != nil {
			res.Errors = append(res.Errors, BatchError{PatientIndex: i, PatientID: id, Error: err.Error()})
			continue
		}
		pred, err := s.ml.Predict(ctx, model, DeriveFeatures(*p.Data))
		if err != nil {
			res.Errors = append(res.Errors, BatchError{PatientIndex: i, PatientID: id, Error: err.Error()})
			continue
		}
		res.Predictions = append(res.Predictions, BatchPrediction{
			PatientIndex: i,
			PatientID:    id,
			Prediction:   pred.Result,
			RiskLevel:    pred.RiskLevel,
			Probability:  pred.Probability,
			Confidence:   pred.Confidence,
		})
	}
	res.SuccessfulPredictions = len(res.Predictions)
	res.FailedPredictions = len(res.Errors)
	return res, nil
}

// Save stores a diagnosis computed elsewhere.
func (s *Service) Save(ctx context.Context, d *Diagnosis) error {
	d.PatientID = strings.TrimSpace(d.PatientID)
	if d.PatientID == "" {
		if d.PatientName == "" {
			return invalid("patientId is required")
		}
		d.PatientID = NormalizePatientID(d.PatientName)
	}
	if d.Prediction != 0 && d.Prediction != 1 {
		return invalid("prediction must be 0 or 1")
	}
	if d.Probability != nil && (*d.Probability < 0 || *d.Probability > 1) {
		return invalid("probability must be between 0 and 1")
	}
	if d.Model == "" {
		d.Model = mlapi.DefaultModel
	}
	if !IsKnownModel(d.Model) {
		return invalid("unknown model %q", d.Model)
	}
	if d.Features == nil && d.InputData.Height > 0 && d.InputData.Weight > 0 {
		f := DeriveFeatures(d.InputData)
		d.Features = &f
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = s.now().UTC()
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return fmt.Errorf("save diagnosis: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Diagnosis, int, error) {
	return s.repo.List(ctx, Filter{}, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, f Filter, limit, offset int) ([]*Diagnosis, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) LatestByPatient(ctx context.Context, patientID string) (*Diagnosis, error) {
	return s.repo.LatestByPatient(ctx, patientID)
}

func (s *Service) LatestByPatientName(ctx context.Context, name string) (*Diagnosis, error) {
	return s.repo.LatestByPatientName(ctx, name)
}

// Delete removes a diagnosis together with the patient's conversation. When
// the purge shares the delete's transaction a purge failure undoes the delete;
// otherwise the failure is logged and the delete stands.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.runTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if s.purger == nil {
			return nil
		}
		if err := s.purger.DeleteConversation(ctx, d.PatientID); err != nil {
			if !s.atomicDelete {
				s.logger.Warn().Err(err).Str("patient_id", d.PatientID).Str("diagnosis_id", id.String()).
					Msg("diagnosis deleted but chat history was not purged")
				return nil
			}
			return fmt.Errorf("delete conversation for %s: %w", d.PatientID, err)
		}
		return nil
	})
}

func (s *Service) Models(ctx context.Context) (json.RawMessage, error) {
	return s.ml.Models(ctx)
}

func (s *Service) ModelComparison(ctx context.Context) (json.RawMessage, error) {
	return s.ml.ModelComparison(ctx)
}

func (s *Service) ModelMetrics(ctx context.Context, name string) (json.RawMessage, error) {
	return s.ml.ModelMetrics(ctx, name)
}

type EnsembleMetrics struct {
	Success         bool            `json:"success"`
	EnsembleMetrics json.RawMessage `json:"ensemble_metrics"`
	ModelName       string          `json:"model_name"`
	Description     string          `json:"description"`
}

// EnsembleMetrics returns the metrics block of the voting ensemble.
func (s *Service) EnsembleMetrics(ctx context.Context) (*EnsembleMetrics, error) {
	raw, err := s.ml.ModelMetrics(ctx, mlapi.DefaultModel)
	if err != nil {
		return nil, err
	}
	var body struct {
		Metrics json.RawMessage `json:"metrics"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode ensemble metrics: %w", err)
	}
	if len(body.Metrics) == 0 {
		body.Metrics = json.RawMessage("null")
	}
	return &EnsembleMetrics{
		Success:         true,
		EnsembleMetrics: body.Metrics,
		ModelName:       "Ensemble Model",
		Description:     "Combined predictions from multiple ML models for enhanced accuracy",
	}, nil
}

const mlHealthTimeout = 5 * time.Second

func (s *Service) MLHealth(ctx context.Context) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, mlHealthTimeout)
	defer cancel()
	return s.ml.Health(ctx)
}
