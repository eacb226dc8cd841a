package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

func (r *txRepo) ControllerByID(ctx context.Context, controllerID string) (store.Controller, error) {
	var c store.Controller
	var name sql.NullString
	var enabled int
	var revoked, seen sql.NullInt64

	err := r.tx.QueryRowContext(ctx, `
SELECT controller_id, display_name, enabled, revoked_at_ms, last_seen_at_ms
FROM controllers
WHERE controller_id = ?;
`, controllerID).Scan(&c.ID, &name, &enabled, &revoked, &seen)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Controller{}, store.ErrNotFound
	}
	if err != nil {
		return store.Controller{}, fmt.Errorf("ControllerByID: %w", err)
	}

	c.DisplayName = name.String
	c.Enabled = enabled == 1
	c.RevokedAt = fromNullMs(revoked)
	c.LastSeenAt = fromNullMs(seen)
	return c, nil
}

const readerColumns = `reader_id, reader_ref, controller_id, door_id, active`

func scanReader(sc interface{ Scan(...any) error }) (store.Reader, error) {
	var rd store.Reader
	var door sql.NullString
	var active int
	if err := sc.Scan(&rd.ID, &rd.Ref, &rd.ControllerID, &door, &active); err != nil {
		return store.Reader{}, err
	}
	rd.DoorID = door.String
	rd.Active = active == 1
	return rd, nil
}

func (r *txRepo) ReaderByRef(ctx context.Context, readerRef string) (store.Reader, error) {
	rd, err := scanReader(r.tx.QueryRowContext(ctx,
		`SELECT `+readerColumns+` FROM readers WHERE reader_ref = ?;`, readerRef))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Reader{}, store.ErrNotFound
	}
	if err != nil {
		return store.Reader{}, fmt.Errorf("ReaderByRef: %w", err)
	}
	return rd, nil
}

func (r *txRepo) ReadersByController(ctx context.Context, controllerID string) ([]store.Reader, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT `+readerColumns+` FROM readers WHERE controller_id = ? ORDER BY reader_ref;`, controllerID)
	if err != nil {
		return nil, fmt.Errorf("ReadersByController: %w", err)
	}
	defer rows.Close()

	var out []store.Reader
	for rows.Next() {
		rd, err := scanReader(rows)
		if err != nil {
			return nil, fmt.Errorf("ReadersByController scan: %w", err)
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

func (r *txRepo) DoorByID(ctx context.Context, doorID string) (store.Door, error) {
	var d store.Door
	var lock string
	var active int
	err := r.tx.QueryRowContext(ctx, `
SELECT door_id, name, lock_type, active FROM doors WHERE door_id = ?;
`, doorID).Scan(&d.ID, &d.Name, &lock, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Door{}, store.ErrNotFound
	}
	if err != nil {
		return store.Door{}, fmt.Errorf("DoorByID: %w", err)
	}
	d.LockType = store.LockType(lock)
	d.Active = active == 1
	return d, nil
}

const credentialColumns = `credential_id, uid, employee_id, issued_at_ms, expires_at_ms, active`

func scanCredential(sc interface{ Scan(...any) error }) (store.Credential, error) {
	var c store.Credential
	var issued int64
	var expires sql.NullInt64
	var active int
	if err := sc.Scan(&c.ID, &c.UID, &c.EmployeeID, &issued, &expires, &active); err != nil {
		return store.Credential{}, err
	}
	c.IssuedAt = fromMs(issued)
	c.ExpiresAt = fromNullMs(expires)
	c.Active = active == 1
	return c, nil
}

func (r *txRepo) CredentialByUID(ctx context.Context, uid string) (store.Credential, error) {
	c, err := scanCredential(r.tx.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE uid = ?;`, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Credential{}, store.ErrNotFound
	}
	if err != nil {
		return store.Credential{}, fmt.Errorf("CredentialByUID: %w", err)
	}
	return c, nil
}

func (r *txRepo) CredentialsByEmployees(ctx context.Context, employeeIDs []string) ([]store.Credential, error) {
	if len(employeeIDs) == 0 {
		return nil, nil
	}
	rows, err := r.tx.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE employee_id IN (`+placeholders(len(employeeIDs))+`) ORDER BY uid;`,
		stringArgs(employeeIDs)...)
	if err != nil {
		return nil, fmt.Errorf("CredentialsByEmployees: %w", err)
	}
	defer rows.Close()

	var out []store.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("CredentialsByEmployees scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const employeeColumns = `employee_id, name, access_group_id, active`

func scanEmployee(sc interface{ Scan(...any) error }) (store.Employee, error) {
	var e store.Employee
	var group sql.NullString
	var active int
	if err := sc.Scan(&e.ID, &e.Name, &group, &active); err != nil {
		return store.Employee{}, err
	}
	e.AccessGroupID = group.String
	e.Active = active == 1
	return e, nil
}

func (r *txRepo) EmployeeByID(ctx context.Context, employeeID string) (store.Employee, error) {
	e, err := scanEmployee(r.tx.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE employee_id = ?;`, employeeID))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Employee{}, store.ErrNotFound
	}
	if err != nil {
		return store.Employee{}, fmt.Errorf("EmployeeByID: %w", err)
	}
	return e, nil
}

func (r *txRepo) EmployeesByGroups(ctx context.Context, groupIDs []string) ([]store.Employee, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	rows, err := r.tx.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE access_group_id IN (`+placeholders(len(groupIDs))+`) ORDER BY employee_id;`,
		stringArgs(groupIDs)...)
	if err != nil {
		return nil, fmt.Errorf("EmployeesByGroups: %w", err)
	}
	defer rows.Close()

	var out []store.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("EmployeesByGroups scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *txRepo) DoorRules(ctx context.Context, groupID, doorID string) ([]store.DoorRule, error) {
	return r.queryRules(ctx, "DoorRules", `
SELECT rule_id, group_id, door_id, access_type, active
FROM access_group_door_rules
WHERE group_id = ? AND door_id = ?
ORDER BY rule_id;
`, groupID, doorID)
}

func (r *txRepo) RulesByDoor(ctx context.Context, doorID string) ([]store.DoorRule, error) {
	return r.queryRules(ctx, "RulesByDoor", `
SELECT rule_id, group_id, door_id, access_type, active
FROM access_group_door_rules
WHERE door_id = ?
ORDER BY rule_id;
`, doorID)
}

func (r *txRepo) queryRules(ctx context.Context, op, query string, args ...any) ([]store.DoorRule, error) {
	rows, err := r.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []store.DoorRule
	for rows.Next() {
		var rule store.DoorRule
		var access string
		var active int
		if err := rows.Scan(&rule.ID, &rule.AccessGroupID, &rule.DoorID, &access, &active); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		rule.AccessType = store.AccessType(access)
		rule.Active = active == 1
		out = append(out, rule)
	}
	return out, rows.Err()
}
