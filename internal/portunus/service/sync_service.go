package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

// ReaderAllowList is the offline allow-list for one reader.
type ReaderAllowList struct {
	ReaderRef      string
	CredentialUIDs []string
}

// Snapshot is a controller's allow-lists, sorted by reader ref with sorted,
// de-duplicated uids, so identical state always yields identical output.
type Snapshot []ReaderAllowList

// SyncService computes what a controller needs to decide offline. It shares
// its precedence rule with AccessService, so any uid it lists is granted by
// a live call against the same state.
type SyncService struct {
	store  store.Store
	now    func() time.Time
	logger *zap.Logger
}

func NewSyncService(st store.Store, opts ...Option) *SyncService {
	o := buildOptions(opts)
	return &SyncService{store: st, now: o.now, logger: o.logger}
}

// SyncController returns the snapshot for controllerID. Readers without a
// door are left out; readers on an inactive door get an empty list.
func (s *SyncService) SyncController(ctx context.Context, controllerID string) (Snapshot, error) {
	controllerID = strings.TrimSpace(controllerID)
	if controllerID == "" {
		return nil, ErrInvalidControllerID
	}
	now := s.now().UTC()

	var snap Snapshot
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := activeController(ctx, tx, controllerID); err != nil {
			return err
		}

		readers, err := tx.ReadersByController(ctx, controllerID)
		if err != nil {
			return fmt.Errorf("list readers: %w", err)
		}

		snap = make(Snapshot, 0, len(readers))
		for _, rd := range readers {
			if !rd.Active || rd.DoorID == "" {
				continue
			}
			uids, err := s.allowedOnDoor(ctx, tx, rd.DoorID, now)
			if err != nil {
				return err
			}
			snap = append(snap, ReaderAllowList{ReaderRef: rd.Ref, CredentialUIDs: uids})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(snap, func(i, j int) bool { return snap[i].ReaderRef < snap[j].ReaderRef })
	s.logger.Debug("controller sync", zap.String("controller_id", controllerID), zap.Int("readers", len(snap)))
	return snap, nil
}

func (s *SyncService) allowedOnDoor(ctx context.Context, tx store.Tx, doorID string, now time.Time) ([]string, error) {
	uids := []string{}

	door, err := tx.DoorByID(ctx, doorID)
	if errors.Is(err, store.ErrNotFound) {
		return uids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load door: %w", err)
	}
	if !door.Active {
		return uids, nil
	}

	rules, err := tx.RulesByDoor(ctx, doorID)
	if err != nil {
		return nil, fmt.Errorf("load door rules: %w", err)
	}
	groups := AllowedGroups(rules)
	if len(groups) == 0 {
		return uids, nil
	}

	emps, err := tx.EmployeesByGroups(ctx, groups)
	if err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}
	var empIDs []string
	for _, e := range emps {
		if e.Active && e.AccessGroupID != "" {
			empIDs = append(empIDs, e.ID)
		}
	}
	if len(empIDs) == 0 {
		return uids, nil
	}

	creds, err := tx.CredentialsByEmployees(ctx, empIDs)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	seen := make(map[string]struct{}, len(creds))
	for _, c := range creds {
		if !c.UsableAt(now) {
			continue
		}
		if _, dup := seen[c.UID]; dup {
			continue
		}
		seen[c.UID] = struct{}{}
		uids = append(uids, c.UID)
	}
	sort.Strings(uids)
	return uids, nil
}
