// Package memory holds in-process stores for tests and dev runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

// Store is an in-memory store.Store. Units of work are serialized by a
// single mutex; audit writes made by a failed unit are discarded.
type Store struct {
	mu sync.Mutex

	controllers map[string]store.Controller
	readers     map[string]store.Reader // by ref
	doors       map[string]store.Door
	employees   map[string]store.Employee
	credentials map[string]store.Credential // by uid
	rules       []store.DoorRule
	nextRuleID  int64

	audit       []store.AuditRecord
	nextAuditID int64
}

func New() *Store {
	return &Store{
		controllers: make(map[string]store.Controller),
		readers:     make(map[string]store.Reader),
		doors:       make(map[string]store.Door),
		employees:   make(map[string]store.Employee),
		credentials: make(map[string]store.Credential),
	}
}

func (s *Store) InTx(ctx context.Context, fn store.TxFn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make([]store.AuditRecord, len(s.audit))
	copy(saved, s.audit)
	savedID := s.nextAuditID

	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.audit = saved
		s.nextAuditID = savedID
		return err
	}
	return nil
}

func (s *Store) PutController(c store.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controllers[c.ID] = c
}

func (s *Store) PutReader(r store.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers[r.Ref] = r
}

func (s *Store) PutDoor(d store.Door) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doors[d.ID] = d
}

func (s *Store) PutEmployee(e store.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
}

func (s *Store) PutCredential(c store.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[c.UID] = c
}

// PutRule appends a rule and returns its assigned ID.
func (s *Store) PutRule(r store.DoorRule) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRuleID++
	r.ID = s.nextRuleID
	s.rules = append(s.rules, r)
	return r.ID
}

// AuditRecords returns a copy of the audit trail in insertion order.
func (s *Store) AuditRecords() []store.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AuditRecord, len(s.audit))
	copy(out, s.audit)
	return out
}

// memTx is only used while Store.mu is held.
type memTx struct {
	s *Store
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) ControllerByID(_ context.Context, id string) (store.Controller, error) {
	c, ok := t.s.controllers[id]
	if !ok {
		return store.Controller{}, store.ErrNotFound
	}
	return c, nil
}

func (t *memTx) ReaderByRef(_ context.Context, ref string) (store.Reader, error) {
	r, ok := t.s.readers[ref]
	if !ok {
		return store.Reader{}, store.ErrNotFound
	}
	return r, nil
}

func (t *memTx) ReadersByController(_ context.Context, controllerID string) ([]store.Reader, error) {
	var out []store.Reader
	for _, r := range t.s.readers {
		if r.ControllerID == controllerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out, nil
}

func (t *memTx) DoorByID(_ context.Context, id string) (store.Door, error) {
	d, ok := t.s.doors[id]
	if !ok {
		return store.Door{}, store.ErrNotFound
	}
	return d, nil
}

func (t *memTx) CredentialByUID(_ context.Context, uid string) (store.Credential, error) {
	c, ok := t.s.credentials[uid]
	if !ok {
		return store.Credential{}, store.ErrNotFound
	}
	return c, nil
}

func (t *memTx) CredentialsByEmployees(_ context.Context, employeeIDs []string) ([]store.Credential, error) {
	want := toSet(employeeIDs)
	var out []store.Credential
	for _, c := range t.s.credentials {
		if _, ok := want[c.EmployeeID]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (t *memTx) EmployeeByID(_ context.Context, id string) (store.Employee, error) {
	e, ok := t.s.employees[id]
	if !ok {
		return store.Employee{}, store.ErrNotFound
	}
	return e, nil
}

func (t *memTx) EmployeesByGroups(_ context.Context, groupIDs []string) ([]store.Employee, error) {
	want := toSet(groupIDs)
	var out []store.Employee
	for _, e := range t.s.employees {
		if e.AccessGroupID == "" {
			continue
		}
		if _, ok := want[e.AccessGroupID]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) DoorRules(_ context.Context, groupID, doorID string) ([]store.DoorRule, error) {
	var out []store.DoorRule
	for _, r := range t.s.rules {
		if r.AccessGroupID == groupID && r.DoorID == doorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memTx) RulesByDoor(_ context.Context, doorID string) ([]store.DoorRule, error) {
	var out []store.DoorRule
	for _, r := range t.s.rules {
		if r.DoorID == doorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func toSet(ids []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
