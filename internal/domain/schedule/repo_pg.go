package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthplix/healthplix/internal/platform/db"
)

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewEntryRepoPG(pool *pgxpool.Pool) EntryRepository {
	return &entryRepoPG{pool: pool}
}

func (r *entryRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *entryRepoPG) Create(ctx context.Context, e *Entry) error {
	day, err := time.Parse(DateLayout, e.Date)
	if err != nil {
		return fmt.Errorf("parse entry date: %w", err)
	}
	e.ID = uuid.New()
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedule_entries (id, doctor_email, patient_email, patient_name, day, slot, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		e.ID, e.DoctorEmail, e.PatientEmail, e.PatientName, day, e.Time, e.Notes).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert schedule entry: %w", err)
	}
	return nil
}

func (r *entryRepoPG) ListForDay(ctx context.Context, doctorEmail string, day time.Time) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, doctor_email, patient_email, patient_name, day, slot, notes, created_at
		FROM schedule_entries
		WHERE doctor_email = $1 AND day = $2
		ORDER BY slot, created_at`, doctorEmail, day)
	if err != nil {
		return nil, fmt.Errorf("list schedule entries: %w", err)
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		var (
			e Entry
			d time.Time
		)
		if err := rows.Scan(&e.ID, &e.DoctorEmail, &e.PatientEmail, &e.PatientName, &d, &e.Time, &e.Notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Date = d.Format(DateLayout)
		items = append(items, &e)
	}
	return items, rows.Err()
}
