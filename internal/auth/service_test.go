package auth

import (
	"context"
	"errors"
	"testing"

	"backend-fleettrack/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"golang.org/x/crypto/bcrypt"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func TestLoginIssuesToken(t *testing.T) {
	mock := newMock(t)
	svc := NewService("test-secret", mock)

	mock.ExpectQuery(`SELECT password_hash, role FROM drivers`).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows([]string{"password_hash", "role"}).
			AddRow(hashFor(t, "hunter2"), "driver"))

	tokens, err := svc.Login(context.Background(), "d1", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.TokenType != "Bearer" || tokens.AccessToken == "" {
		t.Fatalf("unexpected response %+v", tokens)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokens.AccessToken, claims, func(_ *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.DriverID != "d1" || claims.Role != "driver" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	mock := newMock(t)
	svc := NewService("test-secret", mock)

	mock.ExpectQuery(`SELECT password_hash, role FROM drivers`).
		WithArgs("d1").
		WillReturnRows(pgxmock.NewRows([]string{"password_hash", "role"}).
			AddRow(hashFor(t, "hunter2"), "driver"))

	_, err := svc.Login(context.Background(), "d1", "wrong")
	if err == nil || err.Error() != "invalid credentials" {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLoginUnknownDriver(t *testing.T) {
	mock := newMock(t)
	svc := NewService("test-secret", mock)

	mock.ExpectQuery(`SELECT password_hash, role FROM drivers`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := svc.Login(context.Background(), "ghost", "pw")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoginValidation(t *testing.T) {
	svc := NewService("test-secret", newMock(t))

	if _, err := svc.Login(context.Background(), "", "pw"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "d1", ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
