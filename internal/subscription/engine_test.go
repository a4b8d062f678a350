package subscription

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpngrid/internal/models"
)

// memStore is an in-memory Store honoring the same contract as the gorm
// repository, including the deactivate-on-limit write in AddTrafficUsed.
type memStore struct {
	mu     sync.Mutex
	rows   map[uint]*models.Subscription
	nextID uint
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[uint]*models.Subscription), nextID: 1}
}

func (s *memStore) FindByID(id uint) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *memStore) Create(sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = s.nextID
	s.nextID++
	cp := *sub
	s.rows[sub.ID] = &cp
	return nil
}

func (s *memStore) Update(id uint, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "end_date":
			row.EndDate = v.(time.Time)
		case "is_active":
			row.IsActive = v.(bool)
		case "traffic_limit":
			row.TrafficLimit = v.(int64)
		}
	}
	return nil
}

func (s *memStore) Delete(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *memStore) FindByUser(userID int64) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memStore) FindEffectiveActiveByUser(userID int64, now time.Time) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, row := range s.rows {
		if row.UserID == userID && row.EffectivelyActive(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memStore) FindEffectiveActiveByServer(serverID uint, now time.Time) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, row := range s.rows {
		if row.ServerID != nil && *row.ServerID == serverID && row.EffectivelyActive(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memStore) FindExpiringWithin(days int, now time.Time) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(time.Duration(days) * 24 * time.Hour)
	var out []models.Subscription
	for _, row := range s.rows {
		if row.EffectivelyActive(now) && row.EndDate.Before(cutoff) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memStore) FindFlaggedActiveButLapsed(now time.Time) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, row := range s.rows {
		if row.IsActive && (now.After(row.EndDate) || row.TrafficExhausted()) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memStore) FindBoundActive(now time.Time) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, row := range s.rows {
		if row.ServerID != nil && row.EffectivelyActive(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memStore) AddTrafficUsed(id uint, delta int64) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	row.TrafficUsed += delta
	if row.TrafficLimit > 0 && row.TrafficUsed >= row.TrafficLimit {
		row.IsActive = false
	}
	cp := *row
	return &cp, nil
}

func newTestEngine(t *testing.T) (*Engine, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewEngine(store, zap.NewNop()), store
}

func TestCreateSetsWindowAndDefaults(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	sub, err := engine.Create(CreateParams{
		UserID: 7, TariffID: 1, Days: 30, TrafficLimit: 1 << 30,
	})
	require.NoError(t, err)

	assert.Equal(t, now, sub.StartDate)
	assert.Equal(t, now.Add(30*24*time.Hour), sub.EndDate)
	assert.True(t, sub.IsActive)
	assert.Equal(t, 1, sub.MaxDevices)
	assert.Equal(t, models.StatusActive, sub.EffectiveStatus(now))
}

func TestExtendBeforeExpiryExtendsFromEndDate(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	sub, err := engine.Create(CreateParams{UserID: 1, TariffID: 1, Days: 30})
	require.NoError(t, err)
	originalEnd := sub.EndDate

	// Renew ten days in: remaining time is kept.
	engine.now = func() time.Time { return now.Add(10 * 24 * time.Hour) }
	extended, err := engine.Extend(sub.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, originalEnd.Add(30*24*time.Hour), extended.EndDate)
}

func TestExtendAfterExpiryExtendsFromNow(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	sub, err := engine.Create(CreateParams{UserID: 1, TariffID: 1, Days: 30})
	require.NoError(t, err)

	// Renew ten days after expiry: the gap is not credited.
	late := now.Add(40 * 24 * time.Hour)
	engine.now = func() time.Time { return late }
	extended, err := engine.Extend(sub.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, late.Add(30*24*time.Hour), extended.EndDate)
	assert.True(t, extended.IsActive)
	assert.Equal(t, models.StatusActive, extended.EffectiveStatus(late))
}

func TestExtendUnknownSubscription(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.Extend(99, 30)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestCancelDerivesCancelledStatus(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	sub, err := engine.Create(CreateParams{UserID: 1, TariffID: 1, Days: 30})
	require.NoError(t, err)
	require.NoError(t, engine.Cancel(sub.ID))

	got, err := store.FindByID(sub.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, models.StatusCancelled, got.EffectiveStatus(now))
}

func TestRecordTrafficUsageDeactivatesAtLimit(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	sub, err := engine.Create(CreateParams{UserID: 1, TariffID: 1, Days: 30, TrafficLimit: 100})
	require.NoError(t, err)

	got, err := engine.RecordTrafficUsage(sub.ID, 60)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	got, err = engine.RecordTrafficUsage(sub.ID, 60)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, int64(120), got.TrafficUsed)
	assert.Equal(t, models.StatusExpired, got.EffectiveStatus(now))
}

func TestRecordTrafficUsageUnlimitedNeverDeactivates(t *testing.T) {
	engine, _ := newTestEngine(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	sub, err := engine.Create(CreateParams{UserID: 1, TariffID: 1, Days: 30, TrafficLimit: 0})
	require.NoError(t, err)

	got, err := engine.RecordTrafficUsage(sub.ID, 1<<40)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Equal(t, models.StatusActive, got.EffectiveStatus(now))
}

func TestRecordTrafficUsageConcurrentLosesNothing(t *testing.T) {
	engine, _ := newTestEngine(t)
	sub, err := engine.Create(CreateParams{UserID: 1, TariffID: 1, Days: 30, TrafficLimit: 0})
	require.NoError(t, err)

	const workers = 50
	const delta = int64(1000)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.RecordTrafficUsage(sub.ID, delta)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := engine.Get(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers)*delta, got.TrafficUsed)
}

func TestAddTrafficRaisesFiniteLimitOnly(t *testing.T) {
	engine, store := newTestEngine(t)

	limited, err := engine.Create(CreateParams{UserID: 1, TariffID: 1, Days: 30, TrafficLimit: 100})
	require.NoError(t, err)
	unlimited, err := engine.Create(CreateParams{UserID: 1, TariffID: 1, Days: 30, TrafficLimit: 0})
	require.NoError(t, err)

	require.NoError(t, engine.AddTraffic(limited.ID, 50))
	require.NoError(t, engine.AddTraffic(unlimited.ID, 50))

	got, _ := store.FindByID(limited.ID)
	assert.Equal(t, int64(150), got.TrafficLimit)
	got, _ = store.FindByID(unlimited.ID)
	assert.Zero(t, got.TrafficLimit)
}

func TestSweepLapsedFlipsFlags(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	live, err := engine.Create(CreateParams{UserID: 1, TariffID: 1, Days: 30})
	require.NoError(t, err)
	lapsed, err := engine.Create(CreateParams{UserID: 2, TariffID: 1, Days: 30})
	require.NoError(t, err)
	require.NoError(t, store.Update(lapsed.ID, map[string]interface{}{
		"end_date": now.Add(-time.Hour),
	}))

	flipped, err := engine.SweepLapsed()
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	got, _ := store.FindByID(lapsed.ID)
	assert.False(t, got.IsActive)
	got, _ = store.FindByID(live.ID)
	assert.True(t, got.IsActive)
}

func TestPurgeRefusesActiveSubscription(t *testing.T) {
	engine, store := newTestEngine(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	sub, err := engine.Create(CreateParams{UserID: 1, TariffID: 1, Days: 30})
	require.NoError(t, err)

	assert.Error(t, engine.Purge(sub.ID))

	require.NoError(t, engine.Cancel(sub.ID))
	require.NoError(t, engine.Purge(sub.ID))
	_, err = store.FindByID(sub.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
