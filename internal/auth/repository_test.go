package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newUserRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewPostgresRepository(db), mock
}

func userRows(id, email string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
		AddRow(id, email, "bcrypt-hash", now, now)
}

func TestPostgresRepository_Create(t *testing.T) {
	repo, mock := newUserRepo(t)

	user := &User{Email: "dev@example.com", PasswordHash: "bcrypt-hash"}

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), user.Email, user.PasswordHash, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID == "" {
		t.Error("expected an id to be generated")
	}
	if user.CreatedAt.IsZero() || user.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRepository_Create_KeepsExistingID(t *testing.T) {
	repo, mock := newUserRepo(t)

	user := &User{ID: "preassigned", Email: "dev@example.com", PasswordHash: "bcrypt-hash"}

	mock.ExpectExec("INSERT INTO users").
		WithArgs("preassigned", user.Email, user.PasswordHash, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID != "preassigned" {
		t.Errorf("expected the caller's id to be kept, got %q", user.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRepository_GetByEmail(t *testing.T) {
	repo, mock := newUserRepo(t)

	userID := "123e4567-e89b-12d3-a456-426614174000"
	email := "dev@example.com"

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs(email).
		WillReturnRows(userRows(userID, email))

	user, err := repo.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID != userID || user.Email != email {
		t.Errorf("unexpected user %+v", user)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresRepository_GetByEmail_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("missing@example.com").
		WillReturnError(sql.ErrNoRows)

	user, err := repo.GetByEmail(context.Background(), "missing@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if user != nil {
		t.Error("expected nil user")
	}
}

func TestPostgresRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	user, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if user != nil {
		t.Error("expected nil user")
	}
}
