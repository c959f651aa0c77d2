package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medisched/hospital-booking/internal/auth"
	"github.com/medisched/hospital-booking/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS roles (
	id bigserial PRIMARY KEY,
	name text NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS users (
	id bigserial PRIMARY KEY,
	name text NOT NULL,
	email text NOT NULL UNIQUE,
	password_hash text NOT NULL,
	mobile_number text NOT NULL UNIQUE,
	role_id bigint NOT NULL REFERENCES roles(id),
	specialization text,
	hospital text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS slots (
	id bigserial PRIMARY KEY,
	doctor_id bigint NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	slot_date date NOT NULL,
	start_time timestamptz NOT NULL,
	end_time timestamptz NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	CHECK (start_time < end_time)
);

-- The UNIQUE constraint on slot_id is the database-level arbiter against
-- double booking; there is no stored booked flag.
CREATE TABLE IF NOT EXISTS appointments (
	id bigserial PRIMARY KEY,
	slot_id bigint NOT NULL UNIQUE REFERENCES slots(id),
	user_id bigint NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	appt_date date NOT NULL,
	start_time timestamptz NOT NULL,
	end_time timestamptz NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, dsn, 4)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if _, err := pool.Exec(context.Background(), schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema applied")

	if err := seedRoles(context.Background(), pool); err != nil {
		log.Fatalf("seed roles: %v", err)
	}
	if err := seedUsers(context.Background(), pool, 40, 400); err != nil {
		log.Fatalf("seed users: %v", err)
	}
	if err := seedSlots(context.Background(), pool); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Println("seed complete")
}

func seedRoles(ctx context.Context, pool *pgxpool.Pool) error {
	for _, name := range []string{"admin", "doctor", "patient"} {
		_, err := pool.Exec(ctx, `
			INSERT INTO roles (name) VALUES ($1)
			ON CONFLICT (name) DO NOTHING
		`, name)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, doctors, patients int) error {
	log.Printf("seeding %d doctors and %d patients", doctors, patients)

	specializations := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	hospitals := []string{
		"St. Mary General",
		"Riverside Medical Center",
		"Northgate Clinic",
		"Harborview Hospital",
	}

	// one hash for all seeded accounts, bcrypt per row would be slow
	hash, err := auth.HashPassword("seedpassword1")
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < doctors; i++ {
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]
		hosp := hospitals[gofakeit.Number(0, len(hospitals)-1)]
		_, err := tx.Exec(ctx, `
			INSERT INTO users (name, email, password_hash, mobile_number, role_id, specialization, hospital)
			VALUES ($1, $2, $3, $4, (SELECT id FROM roles WHERE name = 'doctor'), $5, $6)
			ON CONFLICT (email) DO NOTHING
		`, gofakeit.Name(), fmt.Sprintf("doctor%d@%s", i, gofakeit.DomainName()), hash,
			fmt.Sprintf("+1555%07d", i), spec, hosp)
		if err != nil {
			return err
		}
	}

	for i := 0; i < patients; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (name, email, password_hash, mobile_number, role_id)
			VALUES ($1, $2, $3, $4, (SELECT id FROM roles WHERE name = 'patient'))
			ON CONFLICT (email) DO NOTHING
		`, gofakeit.Name(), fmt.Sprintf("patient%d@%s", i, gofakeit.DomainName()), hash,
			fmt.Sprintf("+1666%07d", i))
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// seedSlots gives every doctor an hourly grid, 09:00-17:00 over the next
// seven days.
func seedSlots(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT u.id FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE r.name = 'doctor'
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var doctorIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		doctorIDs = append(doctorIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	log.Printf("seeding slots for %d doctors", len(doctorIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	base := time.Now().Truncate(24 * time.Hour)
	for _, doctorID := range doctorIDs {
		for day := 1; day <= 7; day++ {
			date := base.AddDate(0, 0, day)
			for hour := 9; hour < 17; hour++ {
				start := date.Add(time.Duration(hour) * time.Hour)
				_, err := tx.Exec(ctx, `
					INSERT INTO slots (doctor_id, slot_date, start_time, end_time)
					VALUES ($1, $2, $3, $4)
				`, doctorID, date, start, start.Add(time.Hour))
				if err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}
