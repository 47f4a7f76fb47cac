// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	accounts     map[string]billing.Account // keyed by external id
	charges      []billing.Charge           // id ascending (ids are claimed monotonically)
	nextChargeID int64
	exclusions   map[string]billing.Day // keyed by YYYY-MM-DD
	ranges       map[string]billing.HolidayRange
	checkpoints  map[string][]time.Time // per external id, ascending append order
	globalFloor  *billing.Day
}

func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[string]billing.Account),
		nextChargeID: 1,
		exclusions:   make(map[string]billing.Day),
		ranges:       make(map[string]billing.HolidayRange),
		checkpoints:  make(map[string][]time.Time),
	}
}

// --- Accounts ---

func (m *Memory) SaveAccount(_ context.Context, a billing.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAccountLocked(a)
}

func (m *Memory) saveAccountLocked(a billing.Account) error {
	m.accounts[a.ExternalID] = a
	return nil
}

func (m *Memory) AccountByExternalID(_ context.Context, externalID string) (*billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountByExternalIDLocked(externalID)
}

func (m *Memory) accountByExternalIDLocked(externalID string) (*billing.Account, error) {
	if a, ok := m.accounts[externalID]; ok {
		out := a
		return &out, nil
	}
	return nil, nil
}

func (m *Memory) AccountByAlias(_ context.Context, alias int) (*billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accountByAliasLocked(alias)
}

func (m *Memory) accountByAliasLocked(alias int) (*billing.Account, error) {
	for _, a := range m.accounts {
		if a.Alias == alias {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAccountsLocked()
}

func (m *Memory) listAccountsLocked() ([]billing.Account, error) {
	out := make([]billing.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, nil
}

// --- Charges ---

func (m *Memory) NextChargeID(_ context.Context) (billing.ChargeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextChargeIDLocked()
}

func (m *Memory) nextChargeIDLocked() (billing.ChargeID, error) {
	id := billing.ChargeID(m.nextChargeID)
	m.nextChargeID++
	return id, nil
}

func (m *Memory) AppendCharge(_ context.Context, c billing.Charge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendChargeLocked(c)
}

func (m *Memory) appendChargeLocked(c billing.Charge) error {
	// Ids are claimed monotonically, so append keeps id order.
	m.charges = append(m.charges, c)
	return nil
}

func (m *Memory) DeleteCharge(_ context.Context, id billing.ChargeID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteChargeLocked(id)
}

func (m *Memory) deleteChargeLocked(id billing.ChargeID) (bool, error) {
	for i, c := range m.charges {
		if c.ID == id {
			m.charges = append(m.charges[:i], m.charges[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Charges(_ context.Context, f billing.ChargeFilter) ([]billing.Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chargesLocked(f)
}

func (m *Memory) chargesLocked(f billing.ChargeFilter) ([]billing.Charge, error) {
	var out []billing.Charge
	for _, c := range m.charges {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- Exclusion calendar ---

func (m *Memory) AddExclusionDays(_ context.Context, days []billing.Day) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addExclusionDaysLocked(days)
}

func (m *Memory) addExclusionDaysLocked(days []billing.Day) error {
	for _, d := range days {
		m.exclusions[d.String()] = d
	}
	return nil
}

func (m *Memory) RemoveExclusionDay(_ context.Context, d billing.Day) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeExclusionDayLocked(d)
}

func (m *Memory) removeExclusionDayLocked(d billing.Day) (bool, error) {
	if _, ok := m.exclusions[d.String()]; !ok {
		return false, nil
	}
	delete(m.exclusions, d.String())
	return true, nil
}

func (m *Memory) ExclusionDays(_ context.Context) ([]billing.Day, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exclusionDaysLocked()
}

func (m *Memory) exclusionDaysLocked() ([]billing.Day, error) {
	out := make([]billing.Day, 0, len(m.exclusions))
	for _, d := range m.exclusions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *Memory) SaveHolidayRange(_ context.Context, r billing.HolidayRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveHolidayRangeLocked(r)
}

func (m *Memory) saveHolidayRangeLocked(r billing.HolidayRange) error {
	// Notification flags are monotone: an update never resets one.
	if old, ok := m.ranges[r.ID]; ok {
		r.NotifiedOnCreate = r.NotifiedOnCreate || old.NotifiedOnCreate
		r.NotifiedBeforeStart = r.NotifiedBeforeStart || old.NotifiedBeforeStart
		r.NotifiedBeforeEnd = r.NotifiedBeforeEnd || old.NotifiedBeforeEnd
	}
	m.ranges[r.ID] = r
	return nil
}

func (m *Memory) HolidayRanges(_ context.Context) ([]billing.HolidayRange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.holidayRangesLocked()
}

func (m *Memory) holidayRangesLocked() ([]billing.HolidayRange, error) {
	out := make([]billing.HolidayRange, 0, len(m.ranges))
	for _, r := range m.ranges {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- Checkpoints ---

func (m *Memory) AppendCheckpoint(_ context.Context, accountID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendCheckpointLocked(accountID, at)
}

func (m *Memory) appendCheckpointLocked(accountID string, at time.Time) error {
	cps := m.checkpoints[accountID]
	i := sort.Search(len(cps), func(i int) bool { return cps[i].After(at) })
	cps = append(cps, time.Time{})
	copy(cps[i+1:], cps[i:])
	cps[i] = at
	m.checkpoints[accountID] = cps
	return nil
}

func (m *Memory) Checkpoints(_ context.Context, accountID string) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkpointsLocked(accountID)
}

func (m *Memory) checkpointsLocked(accountID string) ([]time.Time, error) {
	out := make([]time.Time, len(m.checkpoints[accountID]))
	copy(out, m.checkpoints[accountID])
	return out, nil
}

func (m *Memory) LastCheckpoint(_ context.Context, accountID string) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCheckpointLocked(accountID)
}

func (m *Memory) lastCheckpointLocked(accountID string) (*time.Time, error) {
	cps := m.checkpoints[accountID]
	if len(cps) == 0 {
		return nil, nil
	}
	last := cps[len(cps)-1]
	return &last, nil
}

// --- Counting floor ---

func (m *Memory) GlobalFloor(_ context.Context) (*billing.Day, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globalFloorLocked()
}

func (m *Memory) globalFloorLocked() (*billing.Day, error) {
	if m.globalFloor == nil {
		return nil, nil
	}
	out := *m.globalFloor
	return &out, nil
}

func (m *Memory) SetGlobalFloor(_ context.Context, d billing.Day) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setGlobalFloorLocked(d)
}

func (m *Memory) setGlobalFloorLocked(d billing.Day) error {
	m.globalFloor = &d
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	txStore := &txMemoryView{parent: tm}

	if err := fn(txStore); err != nil {
		tm.restore(snapshot)
		return err
	}

	// Commit (already done via direct writes)
	return nil
}

type memorySnapshot struct {
	accounts     map[string]billing.Account
	charges      []billing.Charge
	nextChargeID int64
	exclusions   map[string]billing.Day
	ranges       map[string]billing.HolidayRange
	checkpoints  map[string][]time.Time
	globalFloor  *billing.Day
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		accounts:     make(map[string]billing.Account, len(tm.accounts)),
		charges:      append([]billing.Charge{}, tm.charges...),
		nextChargeID: tm.nextChargeID,
		exclusions:   make(map[string]billing.Day, len(tm.exclusions)),
		ranges:       make(map[string]billing.HolidayRange, len(tm.ranges)),
		checkpoints:  make(map[string][]time.Time, len(tm.checkpoints)),
		globalFloor:  tm.globalFloor,
	}
	for k, v := range tm.accounts {
		s.accounts[k] = v
	}
	for k, v := range tm.exclusions {
		s.exclusions[k] = v
	}
	for k, v := range tm.ranges {
		s.ranges[k] = v
	}
	for k, v := range tm.checkpoints {
		s.checkpoints[k] = append([]time.Time{}, v...)
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.accounts = s.accounts
	tm.charges = s.charges
	tm.nextChargeID = s.nextChargeID
	tm.exclusions = s.exclusions
	tm.ranges = s.ranges
	tm.checkpoints = s.checkpoints
	tm.globalFloor = s.globalFloor
}

// txMemoryView runs against the parent while its lock is already held.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) SaveAccount(_ context.Context, a billing.Account) error {
	return tv.parent.saveAccountLocked(a)
}

func (tv *txMemoryView) AccountByExternalID(_ context.Context, externalID string) (*billing.Account, error) {
	return tv.parent.accountByExternalIDLocked(externalID)
}

func (tv *txMemoryView) AccountByAlias(_ context.Context, alias int) (*billing.Account, error) {
	return tv.parent.accountByAliasLocked(alias)
}

func (tv *txMemoryView) ListAccounts(_ context.Context) ([]billing.Account, error) {
	return tv.parent.listAccountsLocked()
}

func (tv *txMemoryView) NextChargeID(_ context.Context) (billing.ChargeID, error) {
	return tv.parent.nextChargeIDLocked()
}

func (tv *txMemoryView) AppendCharge(_ context.Context, c billing.Charge) error {
	return tv.parent.appendChargeLocked(c)
}

func (tv *txMemoryView) DeleteCharge(_ context.Context, id billing.ChargeID) (bool, error) {
	return tv.parent.deleteChargeLocked(id)
}

func (tv *txMemoryView) Charges(_ context.Context, f billing.ChargeFilter) ([]billing.Charge, error) {
	return tv.parent.chargesLocked(f)
}

func (tv *txMemoryView) AddExclusionDays(_ context.Context, days []billing.Day) error {
	return tv.parent.addExclusionDaysLocked(days)
}

func (tv *txMemoryView) RemoveExclusionDay(_ context.Context, d billing.Day) (bool, error) {
	return tv.parent.removeExclusionDayLocked(d)
}

func (tv *txMemoryView) ExclusionDays(_ context.Context) ([]billing.Day, error) {
	return tv.parent.exclusionDaysLocked()
}

func (tv *txMemoryView) SaveHolidayRange(_ context.Context, r billing.HolidayRange) error {
	return tv.parent.saveHolidayRangeLocked(r)
}

func (tv *txMemoryView) HolidayRanges(_ context.Context) ([]billing.HolidayRange, error) {
	return tv.parent.holidayRangesLocked()
}

func (tv *txMemoryView) AppendCheckpoint(_ context.Context, accountID string, at time.Time) error {
	return tv.parent.appendCheckpointLocked(accountID, at)
}

func (tv *txMemoryView) Checkpoints(_ context.Context, accountID string) ([]time.Time, error) {
	return tv.parent.checkpointsLocked(accountID)
}

func (tv *txMemoryView) LastCheckpoint(_ context.Context, accountID string) (*time.Time, error) {
	return tv.parent.lastCheckpointLocked(accountID)
}

func (tv *txMemoryView) GlobalFloor(_ context.Context) (*billing.Day, error) {
	return tv.parent.globalFloorLocked()
}

func (tv *txMemoryView) SetGlobalFloor(_ context.Context, d billing.Day) error {
	return tv.parent.setGlobalFloorLocked(d)
}
