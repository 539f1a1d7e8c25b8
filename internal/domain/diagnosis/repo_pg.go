package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardiorisk/cardiorisk/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const diagCols = `id, patient_id, patient_name, input_data, features,
	prediction, probability, prob_low_risk, prob_high_risk, confidence,
	model, model_display_name, metrics, risk_level,
	timestamp, created_at, updated_at`

func (r *repoPG) scanRow(row pgx.Row) (*Diagnosis, error) {
	var d Diagnosis
	err := row.Scan(&d.ID, &d.PatientID, &d.PatientName, &d.InputData, &d.Features,
		&d.Prediction, &d.Probability, &d.Probabilities.LowRisk, &d.Probabilities.HighRisk, &d.Confidence,
		&d.Model, &d.ModelDisplayName, &d.Metrics, &d.RiskLevel,
		&d.Timestamp, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Diagnosis) error {
	d.ID = uuid.New()
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO diagnosis (id, patient_id, patient_name, input_data, features,
			prediction, probability, prob_low_risk, prob_high_risk, confidence,
			model, model_display_name, metrics, risk_level, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		d.ID, d.PatientID, d.PatientName, d.InputData, d.Features,
		d.Prediction, d.Probability, d.Probabilities.LowRisk, d.Probabilities.HighRisk, d.Confidence,
		d.Model, d.ModelDisplayName, d.Metrics, d.RiskLevel, d.Timestamp,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+diagCols+` FROM diagnosis WHERE id = $1`, id))
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `DELETE FROM diagnosis WHERE id = $1 RETURNING `+diagCols, id))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Diagnosis, int, error) {
	where, args := filterClause(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM diagnosis`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count diagnoses: %w", err)
	}

	idx := len(args) + 1
	query := fmt.Sprintf(`SELECT %s FROM diagnosis%s ORDER BY timestamp DESC, seq DESC LIMIT $%d OFFSET $%d`,
		diagCols, where, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list diagnoses: %w", err)
	}
	defer rows.Close()

	items := []*Diagnosis{}
	for rows.Next() {
		d, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func filterClause(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.PatientID != "" {
		args = append(args, f.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.PatientName != "" {
		args = append(args, f.PatientName, NormalizePatientID(f.PatientName))
		conds = append(conds, fmt.Sprintf("(patient_name = $%d OR patient_id = $%d)", len(args)-1, len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) LatestByPatient(ctx context.Context, patientID string) (*Diagnosis, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+diagCols+` FROM diagnosis
		WHERE patient_id = $1 ORDER BY timestamp DESC, seq DESC LIMIT 1`, patientID))
}

func (r *repoPG) LatestByPatientName(ctx context.Context, name string) (*Diagnosis, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+diagCols+` FROM diagnosis
		WHERE patient_name = $1 OR patient_id = $2 ORDER BY timestamp DESC, seq DESC LIMIT 1`,
		name, NormalizePatientID(name)))
}
