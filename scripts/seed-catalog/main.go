// Command seed-catalog loads a catalog JSON file (the same format as
// SEED_CATALOG_PATH) into Postgres. Existing rows for the listed salons are
// replaced; bookings are left alone.
//
//	DATABASE_URL=... go run ./scripts/seed-catalog testdata/salons.json
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/wolfman30/salon-concierge/internal/schedule"
)

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed-catalog <catalog.json>")
		os.Exit(1)
	}
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Println("Error: DATABASE_URL environment variable not set")
		os.Exit(1)
	}

	store, err := schedule.LoadMemoryStore(os.Args[1])
	if err != nil {
		fmt.Printf("Error loading catalog: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		fmt.Printf("Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	for _, cat := range store.Catalogs() {
		if err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error { return seed(ctx, tx, cat) }); err != nil {
			fmt.Printf("Error seeding %s: %v\n", cat.Salon.ID, err)
			os.Exit(1)
		}
		fmt.Printf("seeded %s: %d services, %d staff\n", cat.Salon.ID, len(cat.Services), len(cat.Staff))
	}
}

func seed(ctx context.Context, tx pgx.Tx, cat *schedule.Catalog) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO salons (id, name, timezone) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, timezone = EXCLUDED.timezone
	`, cat.Salon.ID, cat.Salon.Name, cat.Location().String())
	if err != nil {
		return fmt.Errorf("salon: %w", err)
	}

	// Deactivate rather than delete: bookings reference staff and services.
	if _, err := tx.Exec(ctx, `UPDATE services SET active = false WHERE salon_id = $1`, cat.Salon.ID); err != nil {
		return fmt.Errorf("deactivate services: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE staff SET active = false WHERE salon_id = $1`, cat.Salon.ID); err != nil {
		return fmt.Errorf("deactivate staff: %w", err)
	}

	for _, svc := range cat.Services {
		aliases := svc.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, salon_id, name, aliases, duration_minutes, active)
			VALUES ($1, $2, $3, $4, $5, true)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, aliases = EXCLUDED.aliases,
				duration_minutes = EXCLUDED.duration_minutes, active = true
		`, svc.ID, cat.Salon.ID, svc.Name, aliases, svc.DurationMinutes)
		if err != nil {
			return fmt.Errorf("service %s: %w", svc.ID, err)
		}
	}

	for _, st := range cat.Staff {
		_, err := tx.Exec(ctx, `
			INSERT INTO staff (id, salon_id, name, active) VALUES ($1, $2, $3, true)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = true
		`, st.ID, cat.Salon.ID, st.Name)
		if err != nil {
			return fmt.Errorf("staff %s: %w", st.ID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM staff_services WHERE staff_id = $1`, st.ID); err != nil {
			return fmt.Errorf("clear staff services: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM working_hours WHERE staff_id = $1`, st.ID); err != nil {
			return fmt.Errorf("clear working hours: %w", err)
		}
		for _, svcID := range st.ServiceIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO staff_services (staff_id, service_id) VALUES ($1, $2)`, st.ID, svcID); err != nil {
				return fmt.Errorf("staff service %s/%s: %w", st.ID, svcID, err)
			}
		}
		for _, wh := range st.Hours {
			_, err := tx.Exec(ctx, `
				INSERT INTO working_hours (staff_id, weekday, start_minute, end_minute) VALUES ($1, $2, $3, $4)
			`, st.ID, int(wh.Weekday), wh.Start.Minutes(), wh.End.Minutes())
			if err != nil {
				return fmt.Errorf("working hours %s: %w", st.ID, err)
			}
		}
	}
	return nil
}
