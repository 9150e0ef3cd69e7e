package authboot

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/coredesk/llmcore/internal/session"
	"github.com/coredesk/llmcore/pkg/models"
)

// DBConfig is the Postgres connection pool tuning for SupabaseClientFactory,
// the schema and auth dimension aside (spec §4.5). A real Supabase project
// is a managed Postgres instance behind PostgREST/GoTrue, so underneath
// getOrCreate this is exactly the database/sql + lib/pq pool the teacher
// builds for Cockroach (internal/storage/cockroach.go), parameterized by
// schema and auth mode instead of by store type.
type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

func (c DBConfig) withDefaults() DBConfig {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "require"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}

func (c DBConfig) dsn(role string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d options='-c role=%s'",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
		int(c.ConnectTimeout.Seconds()), role,
	)
}

// clientKey is the (schema, auth?) cache key spec.md:173-175 describes for
// getOrCreate.
type clientKey struct {
	schema  string
	useAuth bool
}

// SupabaseClient is what getOrCreate hands back: a pooled connection scoped
// to one schema, either the read-only anon role or the auto-refreshing
// authenticated role.
type SupabaseClient struct {
	DB       *sql.DB
	Schema   string
	ReadOnly bool

	cancelRefresh context.CancelFunc
}

// Close tears down the pooled connection and stops its auto-refresh loop,
// if any. Callers that only borrowed the client via Build should not call
// this directly — see SessionClientAdapter.
func (c *SupabaseClient) Close() error {
	if c.cancelRefresh != nil {
		c.cancelRefresh()
	}
	return c.DB.Close()
}

// WithUserToken runs fn inside a transaction with the user's access token
// attached as the `request.jwt.claim.sub` session variable for the
// transaction's lifetime, the same row-level-security handshake a real
// Supabase/PostgREST deployment performs per request. This is the "per-user
// auth storage" spec.md:174 describes: the pooled connection itself is
// shared, but each transaction is scoped to one caller's identity.
func (c *SupabaseClient) WithUserToken(ctx context.Context, userID string, fn func(*sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SET LOCAL request.jwt.claim.sub = $1", userID); err != nil {
		return fmt.Errorf("attach user claim: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// SupabaseClientFactory implements spec.md:173-175's getOrCreate operation:
// one pooled client per (schema, useAuth) pair, built lazily and cached for
// the process lifetime. useAuth selects between the authenticated role
// (auto-refreshing, per-user scoped via WithUserToken) and the read-only
// anon role.
type SupabaseClientFactory struct {
	mu       sync.Mutex
	clients  map[clientKey]*SupabaseClient
	dbConfig DBConfig
	log      *slog.Logger
}

// NewSupabaseClientFactory constructs a factory over dbConfig. No
// connections are opened until GetOrCreate is first called for a given
// (schema, useAuth) pair.
func NewSupabaseClientFactory(dbConfig DBConfig, log *slog.Logger) *SupabaseClientFactory {
	if log == nil {
		log = slog.Default()
	}
	return &SupabaseClientFactory{
		clients:  map[clientKey]*SupabaseClient{},
		dbConfig: dbConfig.withDefaults(),
		log:      log,
	}
}

// GetOrCreate returns the cached client for (schema, useAuth), building it
// on first use (spec.md:173-175). useAuth=true attaches the authenticated
// role and starts a background auto-refresh loop that re-validates the
// connection on a fixed interval, the DB-backed analogue of refreshing a
// short-lived access token before it expires. useAuth=false builds a
// read-only anon client with no refresh loop.
func (f *SupabaseClientFactory) GetOrCreate(ctx context.Context, schema string, useAuth bool) (*SupabaseClient, error) {
	key := clientKey{schema: schema, useAuth: useAuth}

	f.mu.Lock()
	if existing, ok := f.clients[key]; ok {
		f.mu.Unlock()
		return existing, nil
	}
	f.mu.Unlock()

	client, err := f.build(ctx, schema, useAuth)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.clients[key]; ok {
		_ = client.Close()
		return existing, nil
	}
	f.clients[key] = client
	return client, nil
}

func (f *SupabaseClientFactory) build(ctx context.Context, schema string, useAuth bool) (*SupabaseClient, error) {
	role := "anon"
	if useAuth {
		role = "authenticated"
	}

	db, err := sql.Open("postgres", f.dbConfig.dsn(role))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(f.dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(f.dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(f.dbConfig.ConnMaxLifetime)

	connectCtx, cancel := context.WithTimeout(ctx, f.dbConfig.ConnectTimeout)
	defer cancel()
	if _, err := db.ExecContext(connectCtx, fmt.Sprintf("SET search_path TO %s", pqQuoteIdent(schema))); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set search_path: %w", err)
	}

	client := &SupabaseClient{DB: db, Schema: schema, ReadOnly: !useAuth}

	if !useAuth {
		if _, err := db.ExecContext(connectCtx, "SET default_transaction_read_only = on"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set read-only: %w", err)
		}
		return client, nil
	}

	refreshCtx, cancelRefresh := context.WithCancel(context.Background())
	client.cancelRefresh = cancelRefresh
	go f.autoRefresh(refreshCtx, client)
	return client, nil
}

// autoRefresh re-pings the authenticated connection every interval so a
// network-level session drop (the DB-level equivalent of an expired OAuth
// token) is caught and logged well before a request depends on it.
func (f *SupabaseClientFactory) autoRefresh(ctx context.Context, client *SupabaseClient) {
	const interval = 4 * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, f.dbConfig.ConnectTimeout)
			if err := client.DB.PingContext(pingCtx); err != nil {
				f.log.Warn("authboot: authenticated client refresh failed", "schema", client.Schema, "error", err)
			}
			cancel()
		}
	}
}

// Shutdown closes every cached client concurrently.
func (f *SupabaseClientFactory) Shutdown() {
	f.mu.Lock()
	clients := make([]*SupabaseClient, 0, len(f.clients))
	for _, c := range f.clients {
		clients = append(clients, c)
	}
	f.clients = map[clientKey]*SupabaseClient{}
	f.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *SupabaseClient) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				f.log.Warn("authboot: client close failed", "schema", c.Schema, "error", err)
			}
		}(c)
	}
	wg.Wait()
}

// pqQuoteIdent quotes a Postgres identifier for use in a statement that
// cannot be parameterized (SET search_path takes no placeholder). Schema
// names come from deployment config, not untrusted input, but this still
// guards against an identifier containing a stray quote.
func pqQuoteIdent(ident string) string {
	return `"` + stripQuotes(ident) + `"`
}

func stripQuotes(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '"' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// SessionClientAdapter adapts a SupabaseClientFactory to session.ClientFactory
// (spec §4.4's per-user registry) by borrowing the shared, schema-scoped
// authenticated client on every RegisterSession call rather than opening a
// new connection pool per user. Close is a no-op: the pooled client
// outlives any single user session and is torn down only by the
// factory's own Shutdown.
type SessionClientAdapter struct {
	Factory *SupabaseClientFactory
	Schema  string
}

// Build implements session.ClientFactory.
func (a *SessionClientAdapter) Build(ctx context.Context, sess *models.UserAuthSession) (session.Closer, error) {
	schema := a.Schema
	if schema == "" {
		schema = "public"
	}
	client, err := a.Factory.GetOrCreate(ctx, schema, true)
	if err != nil {
		return nil, fmt.Errorf("build session client: %w", err)
	}
	return borrowedClient{client}, nil
}

// borrowedClient wraps a shared *SupabaseClient so RemoveSession/Shutdown
// on the session.Registry never closes a connection pool other sessions
// still depend on.
type borrowedClient struct {
	*SupabaseClient
}

func (borrowedClient) Close() error { return nil }
