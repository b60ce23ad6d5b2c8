package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"leasing/risk-engine/internal/domain"
)

// DB is the subset of pgxpool.Pool used by the Postgres store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return pool, nil
}

// Postgres stores assessments in risk_engine.risk_assessment. The scoring
// columns are denormalised for reporting; the request and response payloads
// are kept verbatim for replay.
type Postgres struct {
	db DB
}

// NewPostgres creates a store backed by db.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

const insertAssessment = `
	INSERT INTO risk_engine.risk_assessment (
		assessment_id, request_id, contract_id, customer_id,
		model_version, total_score, tier, decision, probability_of_default,
		legacy_score, legacy_band,
		request_payload, response_payload,
		processing_time_ms, evaluated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	ON CONFLICT (request_id) DO NOTHING
`

// Save inserts the assessment. A conflicting request_id inserts nothing and
// returns ErrDuplicateRequest.
func (p *Postgres) Save(ctx context.Context, a *domain.Assessment) error {
	reqJSON, err := json.Marshal(a.Request)
	if err != nil {
		return eris.Wrap(err, "store: marshal request payload")
	}
	respJSON, err := json.Marshal(a.Response)
	if err != nil {
		return eris.Wrap(err, "store: marshal response payload")
	}

	r := a.Response
	tag, err := p.db.Exec(ctx, insertAssessment,
		r.AssessmentID, a.Request.RequestID, a.Request.Contract.ContractID, a.Request.Customer.CustomerID,
		r.ModelVersion, r.TotalScore, string(r.Tier), string(r.Decision), r.ProbabilityOfDefault,
		r.LegacyScore, r.LegacyBand,
		reqJSON, respJSON,
		r.ProcessingTimeMs, r.EvaluatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "store: insert assessment %s", a.Request.RequestID)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateRequest
	}
	return nil
}

// Get loads the stored payloads for requestID.
func (p *Postgres) Get(ctx context.Context, requestID string) (*domain.Assessment, error) {
	row := p.db.QueryRow(ctx,
		`SELECT request_payload, response_payload
		 FROM risk_engine.risk_assessment
		 WHERE request_id = $1`,
		requestID,
	)
	a, err := scanAssessment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get assessment %s", requestID)
	}
	return a, nil
}

// ListByCustomer returns a customer's assessments, oldest first.
func (p *Postgres) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Assessment, error) {
	rows, err := p.db.Query(ctx,
		`SELECT request_payload, response_payload
		 FROM risk_engine.risk_assessment
		 WHERE customer_id = $1
		 ORDER BY evaluated_at`,
		customerID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list assessments for %s", customerID)
	}
	defer rows.Close()

	result := []*domain.Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "store: list assessments for %s", customerID)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "store: list assessments for %s", customerID)
	}
	return result, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAssessment(row scannable) (*domain.Assessment, error) {
	var reqJSON, respJSON []byte
	if err := row.Scan(&reqJSON, &respJSON); err != nil {
		return nil, err
	}
	var a domain.Assessment
	if err := json.Unmarshal(reqJSON, &a.Request); err != nil {
		return nil, eris.Wrap(err, "decode request payload")
	}
	if err := json.Unmarshal(respJSON, &a.Response); err != nil {
		return nil, eris.Wrap(err, "decode response payload")
	}
	return &a, nil
}
