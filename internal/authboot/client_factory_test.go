package authboot

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/coredesk/llmcore/pkg/models"
)

func newMockFactory(t *testing.T) (*SupabaseClientFactory, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	f := NewSupabaseClientFactory(DBConfig{}, slog.Default())
	return f, mock, db
}

func TestSupabaseClientFactory_GetOrCreate_CachesByKey(t *testing.T) {
	f, _, db := newMockFactory(t)
	t.Cleanup(func() { _ = db.Close() })

	anon := &SupabaseClient{DB: db, Schema: "public", ReadOnly: true}
	f.clients[clientKey{schema: "public", useAuth: false}] = anon

	got, err := f.GetOrCreate(context.Background(), "public", false)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got != anon {
		t.Error("expected GetOrCreate to return the cached client rather than building a new one")
	}

	if len(f.clients) != 1 {
		t.Errorf("len(clients) = %d, want 1 (auth and anon use distinct cache keys)", len(f.clients))
	}
}

func TestSupabaseClientFactory_GetOrCreate_DistinctKeysForAuthAndSchema(t *testing.T) {
	f, _, db1 := newMockFactory(t)
	db2, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db1.Close(); _ = db2.Close() })

	anonPublic := &SupabaseClient{DB: db1, Schema: "public", ReadOnly: true}
	authPublic := &SupabaseClient{DB: db2, Schema: "public", ReadOnly: false}
	f.clients[clientKey{schema: "public", useAuth: false}] = anonPublic
	f.clients[clientKey{schema: "public", useAuth: true}] = authPublic

	got, err := f.GetOrCreate(context.Background(), "public", true)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got != authPublic {
		t.Error("useAuth=true must resolve to the authenticated-role cache entry, not the anon one")
	}
}

func TestSupabaseClient_WithUserToken_AttachesClaimAndCommits(t *testing.T) {
	f, mock, db := newMockFactory(t)
	t.Cleanup(func() { _ = db.Close() })
	_ = f

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL request.jwt.claim.sub").WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	client := &SupabaseClient{DB: db, Schema: "public"}
	called := false
	err := client.WithUserToken(context.Background(), "user-1", func(tx *sql.Tx) error {
		called = true
		_, execErr := tx.Exec("SELECT 1")
		return execErr
	})
	if err != nil {
		t.Fatalf("WithUserToken: %v", err)
	}
	if !called {
		t.Error("expected fn to run inside the transaction")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSupabaseClient_WithUserToken_RollsBackOnError(t *testing.T) {
	_, mock, db := newMockFactory(t)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL request.jwt.claim.sub").WithArgs("user-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	client := &SupabaseClient{DB: db, Schema: "public"}
	wantErr := errors.New("boom")
	err := client.WithUserToken(context.Background(), "user-1", func(tx *sql.Tx) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSessionClientAdapter_Build_BorrowsSharedClientAndCloseIsNoop(t *testing.T) {
	f, _, db := newMockFactory(t)
	t.Cleanup(func() { _ = db.Close() })

	shared := &SupabaseClient{DB: db, Schema: "public"}
	f.clients[clientKey{schema: "public", useAuth: true}] = shared

	adapter := &SessionClientAdapter{Factory: f}
	client, err := adapter.Build(context.Background(), &models.UserAuthSession{User: models.User{ID: "user-1"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The shared underlying client must still be usable after the borrowed
	// handle is closed: RemoveSession on one user must never tear down a
	// connection pool other sessions depend on.
	if _, ok := f.clients[clientKey{schema: "public", useAuth: true}]; !ok {
		t.Error("expected the shared client to remain cached after Close")
	}
}

func TestPqQuoteIdent_StripsEmbeddedQuotes(t *testing.T) {
	got := pqQuoteIdent(`public"; drop table users; --`)
	want := `"public; drop table users; --"`
	if got != want {
		t.Errorf("pqQuoteIdent = %q, want %q", got, want)
	}
}
