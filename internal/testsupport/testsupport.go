// Package testsupport boots a disposable Postgres container and hands
// out two independently-schemaed connections so integration tests can
// exercise internal/pgdialect and internal/differ against a real
// server instead of fakes, adapted from pkg/fixgres's single-sandbox
// pattern to the two-sides-of-a-diff shape this module needs. Plain
// database/sql admin handles (schema setup/teardown, goose migrations)
// go through lib/pq; the pooled per-Side connections the differ
// actually queries through stay on pgx's native pgxpool.
package testsupport

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/url"
	"sync"
	"testing"
	"time"

	faker "github.com/go-faker/faker/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/arrowgrid/reladiff-go/internal/pgdialect"
	"github.com/arrowgrid/reladiff-go/pkg/prng"
)

var (
	once       sync.Once
	container  *postgres.PostgresContainer
	connString string
	bootErr    error
)

// Config controls container bootstrap; a zero Config boots a plain
// "postgres:16-alpine" server with no migrations.
type Config struct {
	Image      string
	DBName     string
	User       string
	Password   string
	MigrationsFS fs.FS // passed to goose.SetBaseFS if non-nil
}

func bootOnce(ctx context.Context, cfg Config) error {
	once.Do(func() {
		image := cfg.Image
		if image == "" {
			image = "docker.io/postgres:16-alpine"
		}
		dbName := cfg.DBName
		if dbName == "" {
			dbName = "reladiff_test"
		}
		user := cfg.User
		if user == "" {
			user = "postgres"
		}
		password := cfg.Password
		if password == "" {
			password = "pass"
		}

		c, err := postgres.Run(ctx, image,
			postgres.WithDatabase(dbName),
			postgres.WithUsername(user),
			postgres.WithPassword(password),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			bootErr = err
			return
		}
		container = c

		host, _ := c.Host(ctx)
		port, _ := c.MappedPort(ctx, "5432/tcp")
		connString = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port.Port(), dbName)

		if cfg.MigrationsFS != nil {
			db, err := sql.Open("postgres", connString)
			if err != nil {
				bootErr = err
				return
			}
			defer db.Close()
			goose.SetBaseFS(cfg.MigrationsFS)
			if err := goose.SetDialect("postgres"); err != nil {
				bootErr = err
				return
			}
			if err := goose.Up(db, "."); err != nil {
				bootErr = err
				return
			}
		}
	})
	return bootErr
}

// Shutdown tears down the shared container. Tests normally don't need
// to call this directly; register it once in a package TestMain.
func Shutdown() error {
	if container == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return container.Terminate(ctx)
}

// Side is one half of a diff: an isolated schema inside the shared
// container, wrapped as a pgdialect.Database ready to hand to
// internal/segment.
type Side struct {
	Schema string
	Pool   *pgxpool.Pool
	DB     *pgdialect.Database
}

// NewPair boots the shared container on first use and returns two
// independently-schemaed sides, named "a" and "b", so a test can
// populate each with different data and diff them through the real
// SQL adapter. Schemas (and their pools) are dropped via t.Cleanup.
func NewPair(t *testing.T, cfg Config) (a, b *Side) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := bootOnce(ctx, cfg); err != nil {
		t.Fatalf("testsupport: boot failed: %v", err)
	}
	return newSide(t, "a"), newSide(t, "b")
}

func newSide(t *testing.T, label string) *Side {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := sql.Open("postgres", connString)
	if err != nil {
		t.Fatalf("testsupport: open admin: %v", err)
	}

	schema := fmt.Sprintf("t_%s_%x", label, time.Now().UnixNano())
	if _, err := admin.ExecContext(ctx, `CREATE SCHEMA "`+schema+`"`); err != nil {
		admin.Close()
		t.Fatalf("testsupport: create schema: %v", err)
	}

	pool, err := pgxpool.New(ctx, withSearchPath(connString, schema))
	if err != nil {
		admin.Close()
		t.Fatalf("testsupport: open pool: %v", err)
	}

	sd := &Side{
		Schema: schema,
		Pool:   pool,
		DB:     pgdialect.New(label, pool),
	}
	t.Cleanup(func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_, _ = admin.ExecContext(dropCtx, `DROP SCHEMA IF EXISTS "`+schema+`" CASCADE`)
		pool.Close()
		admin.Close()
	})
	return sd
}

// withSearchPath pins every pooled connection's search_path via the
// same libpq "options" run-time parameter pkg/fixgres's sandbox.go
// uses, so each Side only ever sees its own schema.
func withSearchPath(base, schema string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("options", fmt.Sprintf("-c search_path=%s,public", schema))
	u.RawQuery = q.Encode()
	return u.String()
}

// SeededFaker configures go-faker with a deterministic source derived
// from seed, so generated fixture rows are reproducible across runs —
// the same pinning technique cmd/faker_test's Test_A/Test_B rely on to
// make faker.UUIDHyphenated() and friends order-independent.
func SeededFaker(seed int64) {
	faker.SetCryptoSource(prng.New(seed))
}
