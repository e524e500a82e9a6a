package prescription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthplix/healthplix/internal/platform/db"
)

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const prescriptionCols = `id, patient_email, doctor_email, patient_name, prescription_text, created_at`

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (id, patient_email, doctor_email, patient_name, prescription_text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		p.ID, p.PatientEmail, p.DoctorEmail, p.PatientName, p.Text).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientEmail string, limit, offset int) ([]*Prescription, int, error) {
	return r.list(ctx, "patient_email", patientEmail, limit, offset)
}

func (r *prescriptionRepoPG) ListByDoctor(ctx context.Context, doctorEmail string, limit, offset int) ([]*Prescription, int, error) {
	return r.list(ctx, "doctor_email", doctorEmail, limit, offset)
}

// list filters on column, which is always one of the two constants above.
func (r *prescriptionRepoPG) list(ctx context.Context, column, email string, limit, offset int) ([]*Prescription, int, error) {
	q := r.conn(ctx)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM prescriptions WHERE `+column+` = $1`, email).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count prescriptions: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT `+prescriptionCols+` FROM prescriptions
		WHERE `+column+` = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, email, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		var p Prescription
		if err := rows.Scan(&p.ID, &p.PatientEmail, &p.DoctorEmail, &p.PatientName, &p.Text, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &p)
	}
	return items, total, rows.Err()
}
