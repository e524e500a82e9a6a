package careassignment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthplix/healthplix/internal/platform/db"
)

type assignmentRepoPG struct{ pool *pgxpool.Pool }

func NewAssignmentRepoPG(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepoPG{pool: pool}
}

func (r *assignmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const assignmentCols = `id, patient_email, doctor_email, name, age, request_id, assigned_at`

func (r *assignmentRepoPG) scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.PatientEmail, &a.DoctorEmail, &a.Name, &a.Age, &a.RequestID, &a.AssignedAt)
	return &a, err
}

func (r *assignmentRepoPG) ReplaceForPatient(ctx context.Context, a *Assignment) (*Assignment, error) {
	q := r.conn(ctx)

	replaced, err := r.scanAssignment(q.QueryRow(ctx,
		`DELETE FROM care_assignments WHERE patient_email = $1 RETURNING `+assignmentCols,
		a.PatientEmail))
	if db.IsNoRows(err) {
		replaced = nil
	} else if err != nil {
		return nil, fmt.Errorf("remove prior assignment: %w", err)
	}

	a.ID = uuid.New()
	err = q.QueryRow(ctx, `
		INSERT INTO care_assignments (id, patient_email, doctor_email, name, age, request_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING assigned_at`,
		a.ID, a.PatientEmail, a.DoctorEmail, a.Name, a.Age, a.RequestID).Scan(&a.AssignedAt)
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}
	return replaced, nil
}

func (r *assignmentRepoPG) GetByPatient(ctx context.Context, patientEmail string) (*Assignment, error) {
	a, err := r.scanAssignment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM care_assignments WHERE patient_email = $1`, patientEmail))
	if db.IsNoRows(err) {
		return nil, ErrNoDoctorAssigned
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (r *assignmentRepoPG) ListByDoctor(ctx context.Context, doctorEmail string) ([]*Assignment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+assignmentCols+` FROM care_assignments WHERE doctor_email = $1 ORDER BY name, patient_email`,
		doctorEmail)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var items []*Assignment
	for rows.Next() {
		a, err := r.scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
