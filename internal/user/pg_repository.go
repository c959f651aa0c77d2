package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medisched/hospital-booking/internal/auth"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrRoleNotFound = errors.New("role not found")
	// ErrDuplicateUser covers both email and mobile-number collisions.
	// Uniqueness is enforced by database constraints, so the check also
	// holds against concurrent writers.
	ErrDuplicateUser = errors.New("email or mobile number already in use")
)

const (
	uniqueViolation = "23505"
	fkViolation     = "23503"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var specialization, hospital *string

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.MobileNumber,
		&u.RoleID,
		&specialization,
		&hospital,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Specialization = specialization
	u.Hospital = hospital
	return &u, nil
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (r *PgRepository) Create(ctx context.Context, u *User) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, mobile_number, role_id, specialization, hospital, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id, name, email, password_hash, mobile_number, role_id, specialization, hospital, created_at, updated_at
	`, u.Name, u.Email, u.PasswordHash, u.MobileNumber, u.RoleID, u.Specialization, u.Hospital)

	created, err := scanUser(row)
	if err != nil {
		switch pgErrCode(err) {
		case uniqueViolation:
			return nil, ErrDuplicateUser
		case fkViolation:
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, mobile_number, role_id, specialization, hospital, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, mobile_number, role_id, specialization, hospital, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
	return scanUser(row)
}

// Update rewrites the mutable profile fields. Email and mobile uniqueness is
// re-checked against all other users via the table constraints.
func (r *PgRepository) Update(ctx context.Context, u *User) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $2,
		    email = $3,
		    mobile_number = $4,
		    role_id = $5,
		    specialization = $6,
		    hospital = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, name, email, password_hash, mobile_number, role_id, specialization, hospital, created_at, updated_at
	`, u.ID, u.Name, u.Email, u.MobileNumber, u.RoleID, u.Specialization, u.Hospital)

	updated, err := scanUser(row)
	if err != nil {
		switch pgErrCode(err) {
		case uniqueViolation:
			return nil, ErrDuplicateUser
		case fkViolation:
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PgRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.name, u.email, u.password_hash, u.mobile_number, u.role_id, u.specialization, u.hospital, u.created_at, u.updated_at,
		       r.name
		FROM users u
		JOIN roles r ON r.id = u.role_id
		ORDER BY u.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		var u User
		var specialization, hospital *string
		if err := rows.Scan(
			&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.MobileNumber, &u.RoleID,
			&specialization, &hospital, &u.CreatedAt, &u.UpdatedAt, &u.RoleName,
		); err != nil {
			return nil, err
		}
		u.Specialization = specialization
		u.Hospital = hospital
		result = append(result, u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) RoleName(ctx context.Context, roleID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM roles WHERE id = $1`, roleID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRoleNotFound
		}
		return "", err
	}
	return name, nil
}

// AccountByEmail implements auth.Directory.
func (r *PgRepository) AccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	u, err := r.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, auth.ErrUnknownAccount
		}
		return nil, err
	}
	return &auth.Account{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		RoleID:       u.RoleID,
	}, nil
}
