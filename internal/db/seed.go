package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Fixtures is the YAML seed document used to stand up a dev installation.
// Omitted `active`/`enabled` flags default to true. Seeding is idempotent:
// rows are upserted by id, rules are inserted once per (group, door, access).
type Fixtures struct {
	Doors       []DoorFixture       `yaml:"doors"`
	Controllers []ControllerFixture `yaml:"controllers"`
	Readers     []ReaderFixture     `yaml:"readers"`
	Groups      []GroupFixture      `yaml:"groups"`
	Employees   []EmployeeFixture   `yaml:"employees"`
	Credentials []CredentialFixture `yaml:"credentials"`
	Rules       []RuleFixture       `yaml:"rules"`
}

type DoorFixture struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	LockType string `yaml:"lock_type"`
	Active   *bool  `yaml:"active"`
}

type ControllerFixture struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled"`
}

type ReaderFixture struct {
	ID         string `yaml:"id"`
	Ref        string `yaml:"ref"`
	Controller string `yaml:"controller"`
	Door       string `yaml:"door"`
	Active     *bool  `yaml:"active"`
}

type GroupFixture struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type EmployeeFixture struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Group  string `yaml:"group"`
	Active *bool  `yaml:"active"`
}

type CredentialFixture struct {
	ID        string     `yaml:"id"`
	UID       string     `yaml:"uid"`
	Employee  string     `yaml:"employee"`
	IssuedAt  time.Time  `yaml:"issued_at"`
	ExpiresAt *time.Time `yaml:"expires_at"`
	Active    *bool      `yaml:"active"`
}

type RuleFixture struct {
	Group  string `yaml:"group"`
	Door   string `yaml:"door"`
	Access string `yaml:"access"`
	Active *bool  `yaml:"active"`
}

// LoadFixtures reads and parses a YAML fixture file.
func LoadFixtures(path string) (Fixtures, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read fixtures: %w", err)
	}
	var f Fixtures
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Fixtures{}, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return f, nil
}

// Seed writes fixtures through the worker in a single transaction.
func Seed(ctx context.Context, w *Worker, f Fixtures) error {
	now := time.Now().UTC().UnixMilli()

	return w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, d := range f.Doors {
			lock := strings.ToUpper(strings.TrimSpace(d.LockType))
			if lock == "" {
				lock = "MAGNETIC"
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO doors(door_id, name, lock_type, active, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(door_id) DO UPDATE SET
  name = excluded.name,
  lock_type = excluded.lock_type,
  active = excluded.active,
  updated_at_ms = excluded.updated_at_ms;`,
				d.ID, d.Name, lock, flag(d.Active), now, now); err != nil {
				return fmt.Errorf("seed door %s: %w", d.ID, err)
			}
		}

		for _, c := range f.Controllers {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO controllers(
  controller_id, display_name, enabled, commissioned_at_ms,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(controller_id) DO UPDATE SET
  display_name = excluded.display_name,
  enabled = excluded.enabled,
  commissioned_at_ms = COALESCE(controllers.commissioned_at_ms, excluded.commissioned_at_ms),
  updated_at_ms = excluded.updated_at_ms;`,
				c.ID, c.Name, flag(c.Enabled), now, now, now); err != nil {
				return fmt.Errorf("seed controller %s: %w", c.ID, err)
			}
		}

		for _, r := range f.Readers {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO readers(reader_id, reader_ref, controller_id, door_id, active, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(reader_id) DO UPDATE SET
  reader_ref = excluded.reader_ref,
  controller_id = excluded.controller_id,
  door_id = excluded.door_id,
  active = excluded.active,
  updated_at_ms = excluded.updated_at_ms;`,
				r.ID, r.Ref, r.Controller, nullString(r.Door), flag(r.Active), now, now); err != nil {
				return fmt.Errorf("seed reader %s: %w", r.ID, err)
			}
		}

		for _, g := range f.Groups {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO access_groups(group_id, name, created_at_ms) VALUES (?, ?, ?)
ON CONFLICT(group_id) DO UPDATE SET name = excluded.name;`,
				g.ID, g.Name, now); err != nil {
				return fmt.Errorf("seed group %s: %w", g.ID, err)
			}
		}

		for _, e := range f.Employees {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO employees(employee_id, name, access_group_id, active, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(employee_id) DO UPDATE SET
  name = excluded.name,
  access_group_id = excluded.access_group_id,
  active = excluded.active,
  updated_at_ms = excluded.updated_at_ms;`,
				e.ID, e.Name, nullString(e.Group), flag(e.Active), now, now); err != nil {
				return fmt.Errorf("seed employee %s: %w", e.ID, err)
			}
		}

		for _, c := range f.Credentials {
			issued := c.IssuedAt
			if issued.IsZero() {
				issued = time.UnixMilli(now)
			}
			var expires any
			if c.ExpiresAt != nil {
				expires = c.ExpiresAt.UTC().UnixMilli()
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO credentials(credential_id, uid, employee_id, issued_at_ms, expires_at_ms, active, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(credential_id) DO UPDATE SET
  uid = excluded.uid,
  employee_id = excluded.employee_id,
  issued_at_ms = excluded.issued_at_ms,
  expires_at_ms = excluded.expires_at_ms,
  active = excluded.active,
  updated_at_ms = excluded.updated_at_ms;`,
				c.ID, c.UID, c.Employee, issued.UTC().UnixMilli(), expires, flag(c.Active), now, now); err != nil {
				return fmt.Errorf("seed credential %s: %w", c.ID, err)
			}
		}

		for _, r := range f.Rules {
			access := strings.ToUpper(strings.TrimSpace(r.Access))
			if _, err := tx.ExecContext(ctx, `
INSERT INTO access_group_door_rules(group_id, door_id, access_type, active, created_at_ms)
SELECT ?, ?, ?, ?, ?
WHERE NOT EXISTS (
  SELECT 1 FROM access_group_door_rules
  WHERE group_id = ? AND door_id = ? AND access_type = ?
);`,
				r.Group, r.Door, access, flag(r.Active), now,
				r.Group, r.Door, access); err != nil {
				return fmt.Errorf("seed rule %s/%s: %w", r.Group, r.Door, err)
			}
		}

		return nil
	})
}

func flag(b *bool) int {
	if b == nil || *b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
