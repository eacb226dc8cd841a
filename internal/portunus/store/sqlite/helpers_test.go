package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  The connection is closed automatically when the
// test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Each call gets a unique in-memory database.  The shared-cache URI
	// keeps the database alive for the lifetime of the connection pool.
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()),
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}
	db.Configure(conn)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	if _, err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn.  The worker is closed
// automatically when the test finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

// seedDirectory loads a small directory: one enabled controller with two
// readers on an active STRIKE door, one employee in group "staff" holding
// card A1B2C3D4, and an ALLOW rule plus an inactive DENY rule.
func seedDirectory(t *testing.T, w *db.Worker) {
	t.Helper()

	no := false
	f := db.Fixtures{
		Doors: []db.DoorFixture{{ID: "door-1", Name: "Main", LockType: "strike"}},
		Controllers: []db.ControllerFixture{
			{ID: "ctrl-1", Name: "Lobby"},
			{ID: "ctrl-off", Name: "Spare", Enabled: &no},
		},
		Readers: []db.ReaderFixture{
			{ID: "rd-1", Ref: "reader-a", Controller: "ctrl-1", Door: "door-1"},
			{ID: "rd-2", Ref: "reader-b", Controller: "ctrl-1"},
		},
		Groups:    []db.GroupFixture{{ID: "staff", Name: "Staff"}},
		Employees: []db.EmployeeFixture{{ID: "emp-1", Name: "Ada", Group: "staff"}},
		Credentials: []db.CredentialFixture{{
			ID: "cred-1", UID: "A1B2C3D4", Employee: "emp-1",
		}},
		Rules: []db.RuleFixture{
			{Group: "staff", Door: "door-1", Access: "allow"},
			{Group: "staff", Door: "door-1", Access: "deny", Active: &no},
		},
	}
	if err := db.Seed(context.Background(), w, f); err != nil {
		t.Fatalf("seedDirectory: %v", err)
	}
}
