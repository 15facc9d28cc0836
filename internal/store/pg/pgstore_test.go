package pg

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/BidumanADT/BellwoodAuthServer/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewWithDB(db), mock
}

func TestFindByUsername(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "username", "coalesce"}).
		AddRow("U1", "alice", "alice@example.com")
	mock.ExpectQuery("select id, username, coalesce").
		WithArgs("alice").
		WillReturnRows(rows)

	identity, err := s.FindByUsername(ctx, " alice ")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	want := auth.UserIdentity{ID: "U1", Username: "alice", Email: "alice@example.com"}
	if identity != want {
		t.Fatalf("identity = %+v, want %+v", identity, want)
	}
}

func TestFindByUsernameNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select id, username, coalesce").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "coalesce"}))

	if _, err := s.FindByUsername(context.Background(), "nobody"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestVerifyPassword(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("Pass123!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	mock.ExpectQuery("select password_hash from users").
		WithArgs("U1").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hash))
	if err := s.VerifyPassword(ctx, "U1", "Pass123!"); err != nil {
		t.Fatalf("correct password refused: %v", err)
	}

	mock.ExpectQuery("select password_hash from users").
		WithArgs("U1").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hash))
	if err := s.VerifyPassword(ctx, "U1", "wrong"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
}

func TestIsLockedOut(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select lockout_until is not null").
		WithArgs("U1").
		WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(true))

	locked, err := s.IsLockedOut(context.Background(), "U1")
	if err != nil {
		t.Fatalf("IsLockedOut: %v", err)
	}
	if !locked {
		t.Fatal("locked = false, want true")
	}
}

func TestSetLockoutUnknownUser(t *testing.T) {
	s, mock := newMockStore(t)
	until := time.Now().Add(time.Hour)

	mock.ExpectExec("update users set lockout_until").
		WithArgs("ghost", &until).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.SetLockout(context.Background(), "ghost", &until); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateUserConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	if _, err := s.CreateUser(context.Background(), "alice", "hash", ""); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestRolesForUserOrder(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"name"}).
		AddRow("booker").
		AddRow("driver")
	mock.ExpectQuery("select r.name").
		WithArgs("U1").
		WillReturnRows(rows)

	roles, err := s.RolesForUser(context.Background(), "U1")
	if err != nil {
		t.Fatalf("RolesForUser: %v", err)
	}
	if want := []string{"booker", "driver"}; !reflect.DeepEqual(roles, want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
}

func TestAddToRole(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select id from roles").
		WithArgs("driver").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("R1"))
	mock.ExpectExec("insert into user_roles").
		WithArgs("U1", "R1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.AddToRole(context.Background(), "U1", "driver"); err != nil {
		t.Fatalf("AddToRole: %v", err)
	}
}

func TestAddToRoleUnknownRole(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select id from roles").
		WithArgs("ghostrole").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if err := s.AddToRole(context.Background(), "U1", "ghostrole"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAddToRoleDuplicateIsNoOp(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select id from roles").
		WithArgs("driver").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("R1"))
	// on conflict do nothing affects zero rows for a repeat assignment.
	mock.ExpectExec("insert into user_roles").
		WithArgs("U1", "R1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.AddToRole(context.Background(), "U1", "driver"); err != nil {
		t.Fatalf("duplicate AddToRole: %v", err)
	}
}

func TestAddToRoleForeignKeyViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select id from roles").
		WithArgs("driver").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("R1"))
	mock.ExpectExec("insert into user_roles").
		WithArgs("ghost", "R1").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	if err := s.AddToRole(context.Background(), "ghost", "driver"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEnsureRoleNormalizesName(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("insert into roles").
		WithArgs(sqlmock.AnyArg(), "dispatcher").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.EnsureRole(context.Background(), "  Dispatcher "); err != nil {
		t.Fatalf("EnsureRole: %v", err)
	}
	if err := s.EnsureRole(context.Background(), "  "); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("blank role err = %v, want ErrInvalidInput", err)
	}
}

func TestClaimsForUser(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"claim_type", "claim_value"}).
		AddRow("uid", "drv-0001").
		AddRow("email", "bob@example.com")
	mock.ExpectQuery("select claim_type, claim_value").
		WithArgs("U1").
		WillReturnRows(rows)

	claims, err := s.ClaimsForUser(context.Background(), "U1")
	if err != nil {
		t.Fatalf("ClaimsForUser: %v", err)
	}
	want := []auth.ClaimRecord{
		{Type: "uid", Value: "drv-0001"},
		{Type: "email", Value: "bob@example.com"},
	}
	if !reflect.DeepEqual(claims, want) {
		t.Fatalf("claims = %v, want %v", claims, want)
	}
}

func TestListUsers(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "username", "coalesce"}).
		AddRow("U2", "alice", "alice@example.com").
		AddRow("U1", "Bob", "")
	mock.ExpectQuery("select id, username, coalesce").
		WithArgs(50, 0).
		WillReturnRows(rows)

	identities, err := s.ListUsers(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	want := []auth.UserIdentity{
		{ID: "U2", Username: "alice", Email: "alice@example.com"},
		{ID: "U1", Username: "Bob"},
	}
	if !reflect.DeepEqual(identities, want) {
		t.Fatalf("identities = %v, want %v", identities, want)
	}
}

func TestDeleteUser(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("delete from users").
		WithArgs("U1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.DeleteUser(ctx, "U1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	mock.ExpectExec("delete from users").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.DeleteUser(ctx, "ghost"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown user err = %v, want ErrNotFound", err)
	}
}

func TestFindUserIDByClaim(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select user_id").
		WithArgs("uid", "drv-0001").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("U1"))
	userID, err := s.FindUserIDByClaim(ctx, auth.ClaimRecord{Type: "uid", Value: "drv-0001"})
	if err != nil {
		t.Fatalf("FindUserIDByClaim: %v", err)
	}
	if userID != "U1" {
		t.Fatalf("userID = %q, want U1", userID)
	}

	mock.ExpectQuery("select user_id").
		WithArgs("uid", "drv-9999").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	if _, err := s.FindUserIDByClaim(ctx, auth.ClaimRecord{Type: "uid", Value: "drv-9999"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unbound claim err = %v, want ErrNotFound", err)
	}
}
