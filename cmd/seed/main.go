// Command seed fills a dev database with demo patients, clinicians and visits.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/televisit/carelink/internal/migrate"
	"github.com/televisit/carelink/internal/model"
)

var states = []string{"CA", "NY", "TX", "WA", "FL", "IL", "MA", "CO"}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := migrate.Up(ctx, dsn); err != nil {
		log.Fatalf("migrate up: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	clinicians, err := seedClinicians(ctx, pool, 20)
	if err != nil {
		log.Fatalf("seed clinicians: %v", err)
	}
	patients, err := seedPatients(ctx, pool, 200)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedVisits(ctx, pool, patients, clinicians, 100); err != nil {
		log.Fatalf("seed visits: %v", err)
	}

	log.Println("seed complete")
}

func seedClinicians(ctx context.Context, pool *pgxpool.Pool, count int) ([]model.Clinician, error) {
	log.Printf("seeding %d clinicians", count)

	out := make([]model.Clinician, 0, count)
	for i := 0; i < count; i++ {
		licensed := pick(states, 1+gofakeit.Number(0, 3))
		c := model.Clinician{
			ID:             uuid.Must(uuid.NewV4()),
			Name:           "Dr. " + gofakeit.Name(),
			LicensedStates: licensed,
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO clinicians (id, name, licensed_states)
			VALUES ($1, $2, $3)
		`, c.ID, c.Name, c.LicensedStates)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]model.Patient, error) {
	log.Printf("seeding %d patients", count)

	out := make([]model.Patient, 0, count)
	for i := 0; i < count; i++ {
		p := model.Patient{
			ID:    uuid.Must(uuid.NewV4()),
			Name:  gofakeit.Name(),
			State: states[gofakeit.Number(0, len(states)-1)],
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, name, state)
			VALUES ($1, $2, $3)
		`, p.ID, p.Name, p.State)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func seedVisits(ctx context.Context, pool *pgxpool.Pool, patients []model.Patient, clinicians []model.Clinician, count int) error {
	log.Printf("seeding %d visits", count)

	seeded := 0
	for i := 0; seeded < count && i < count*10; i++ {
		p := patients[gofakeit.Number(0, len(patients)-1)]
		c := clinicians[gofakeit.Number(0, len(clinicians)-1)]
		if !c.LicensedIn(p.State) {
			continue
		}

		// Future slots on a 15-minute grid, so clinician/instant collisions
		// in the seed data are realistic.
		slot := time.Now().Truncate(15 * time.Minute).
			Add(time.Duration(gofakeit.Number(1, 14*24*4)) * 15 * time.Minute)

		_, err := pool.Exec(ctx, `
			INSERT INTO visits (id, patient_id, clinician_id, scheduled_at, duration_min,
			                    status, notification_channel)
			VALUES ($1, $2, $3, $4, $5, 'SCHEDULED', $6)
		`, uuid.Must(uuid.NewV4()), p.ID, c.ID, slot,
			15*gofakeit.Number(1, 4), gofakeit.RandomString([]string{"sms", "email"}))
		if err != nil {
			return err
		}
		seeded++
	}
	return nil
}

func pick(src []string, n int) []string {
	cp := append([]string(nil), src...)
	gofakeit.ShuffleStrings(cp)
	if n >= len(cp) {
		return cp
	}
	return cp[:n]
}
