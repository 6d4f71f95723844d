package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads salon catalogs from Postgres.
type PostgresStore struct {
	db querier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("schedule: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(db querier) *PostgresStore {
	if db == nil {
		panic("schedule: querier required")
	}
	return &PostgresStore{db: db}
}

// Catalog loads the salon, its active services, active staff, the services
// each staff member performs and their weekly working hours.
func (s *PostgresStore) Catalog(ctx context.Context, salonID string) (*Catalog, error) {
	cat := &Catalog{}
	err := s.db.QueryRow(ctx, `SELECT id, name, timezone FROM salons WHERE id = $1`, salonID).
		Scan(&cat.Salon.ID, &cat.Salon.Name, &cat.Salon.Timezone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSalonNotFound
		}
		return nil, fmt.Errorf("schedule: load salon: %w", err)
	}

	if cat.Services, err = s.services(ctx, salonID); err != nil {
		return nil, err
	}
	if cat.Staff, err = s.staff(ctx, salonID); err != nil {
		return nil, err
	}
	if err := cat.Normalize(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (s *PostgresStore) services(ctx context.Context, salonID string) ([]Service, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, aliases, duration_minutes
		FROM services
		WHERE salon_id = $1 AND active
		ORDER BY id
	`, salonID)
	if err != nil {
		return nil, fmt.Errorf("schedule: query services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Aliases, &svc.DurationMinutes); err != nil {
			return nil, fmt.Errorf("schedule: scan service: %w", err)
		}
		out = append(out, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: iterate services: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) staff(ctx context.Context, salonID string) ([]Staff, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name FROM staff WHERE salon_id = $1 AND active ORDER BY id`, salonID)
	if err != nil {
		return nil, fmt.Errorf("schedule: query staff: %w", err)
	}
	var out []Staff
	index := map[string]int{}
	for rows.Next() {
		var st Staff
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("schedule: scan staff: %w", err)
		}
		index[st.ID] = len(out)
		out = append(out, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: iterate staff: %w", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT ss.staff_id, ss.service_id
		FROM staff_services ss
		JOIN staff s ON s.id = ss.staff_id
		WHERE s.salon_id = $1
		ORDER BY ss.staff_id, ss.service_id
	`, salonID)
	if err != nil {
		return nil, fmt.Errorf("schedule: query staff services: %w", err)
	}
	for rows.Next() {
		var staffID, serviceID string
		if err := rows.Scan(&staffID, &serviceID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("schedule: scan staff service: %w", err)
		}
		if i, ok := index[staffID]; ok {
			out[i].ServiceIDs = append(out[i].ServiceIDs, serviceID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: iterate staff services: %w", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT wh.staff_id, wh.weekday, wh.start_minute, wh.end_minute
		FROM working_hours wh
		JOIN staff s ON s.id = wh.staff_id
		WHERE s.salon_id = $1
		ORDER BY wh.staff_id, wh.weekday, wh.start_minute
	`, salonID)
	if err != nil {
		return nil, fmt.Errorf("schedule: query working hours: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var staffID string
		var weekday, startMin, finishMin int
		if err := rows.Scan(&staffID, &weekday, &startMin, &finishMin); err != nil {
			return nil, fmt.Errorf("schedule: scan working hours: %w", err)
		}
		if i, ok := index[staffID]; ok {
			out[i].Hours = append(out[i].Hours, WorkingHours{
				Weekday: time.Weekday(weekday),
				Start:   TimeOfDayFromMinutes(startMin),
				End:     TimeOfDayFromMinutes(finishMin),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: iterate working hours: %w", err)
	}
	return out, nil
}
