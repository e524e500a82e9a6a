package connection

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthplix/healthplix/internal/platform/db"
)

const pendingPairIndex = "connection_requests_one_pending"

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRequestRepoPG(pool *pgxpool.Pool) RequestRepository {
	return &requestRepoPG{pool: pool}
}

func (r *requestRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const requestCols = `id, doctor_email, patient_email, status, created_at, updated_at`

func (r *requestRepoPG) scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.DoctorEmail, &req.PatientEmail, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	return &req, err
}

func (r *requestRepoPG) scanRows(rows pgx.Rows) ([]*Request, error) {
	defer rows.Close()
	var items []*Request
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		items = append(items, req)
	}
	return items, rows.Err()
}

func (r *requestRepoPG) Create(ctx context.Context, req *Request) error {
	req.ID = uuid.New()
	req.Status = StatusPending
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO connection_requests (id, doctor_email, patient_email, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		req.ID, req.DoctorEmail, req.PatientEmail, req.Status).Scan(&req.CreatedAt, &req.UpdatedAt)
	if db.IsUniqueViolation(err, pendingPairIndex) {
		return ErrDuplicateRequest.WithErr(err)
	}
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (r *requestRepoPG) get(ctx context.Context, sql string, id uuid.UUID) (*Request, error) {
	req, err := r.scanRequest(r.conn(ctx).QueryRow(ctx, sql, id))
	if db.IsNoRows(err) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.get(ctx, `SELECT `+requestCols+` FROM connection_requests WHERE id = $1`, id)
}

func (r *requestRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	return r.get(ctx, `SELECT `+requestCols+` FROM connection_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *requestRepoPG) FindPending(ctx context.Context, doctorEmail, patientEmail string) (*Request, error) {
	req, err := r.scanRequest(r.conn(ctx).QueryRow(ctx, `
		SELECT `+requestCols+` FROM connection_requests
		WHERE doctor_email = $1 AND patient_email = $2 AND status = 'pending'`,
		doctorEmail, patientEmail))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending request: %w", err)
	}
	return req, nil
}

func (r *requestRepoPG) ListPendingForPatient(ctx context.Context, patientEmail string) ([]*Request, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+requestCols+` FROM connection_requests
		WHERE patient_email = $1 AND status = 'pending'
		ORDER BY created_at, id`, patientEmail)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return r.scanRows(rows)
}

func (r *requestRepoPG) ListByDoctor(ctx context.Context, doctorEmail, status string, limit, offset int) ([]*Request, int, error) {
	where := `WHERE doctor_email = $1 AND ($2::text = '' OR status = $2)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM connection_requests `+where, doctorEmail, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+requestCols+` FROM connection_requests `+where+`
		ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`,
		doctorEmail, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	items, err := r.scanRows(rows)
	return items, total, err
}

func (r *requestRepoPG) UpdateStatusIfPending(ctx context.Context, id uuid.UUID, status string) (*Request, error) {
	req, err := r.scanRequest(r.conn(ctx).QueryRow(ctx, `
		UPDATE connection_requests SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestCols, id, status))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update request status: %w", err)
	}
	return req, nil
}
