package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ticket-inventory/internal/clock"
	"github.com/cimillas/ticket-inventory/internal/domain"
	"github.com/cimillas/ticket-inventory/internal/metrics"
	"github.com/cimillas/ticket-inventory/internal/storage/sqlite"
)

var testStart = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

const testHold = 15 * time.Minute

type recordingNotifier struct {
	mu       sync.Mutex
	released []string
	sold     []string
}

func (n *recordingNotifier) UnitReleased(_ context.Context, _, unitID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.released = append(n.released, unitID)
	return nil
}

func (n *recordingNotifier) UnitSold(_ context.Context, _, unitID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sold = append(n.sold, unitID)
	return nil
}

func (n *recordingNotifier) counts() (released, sold int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.released), len(n.sold)
}

// testEngine wires every service over a fresh on-disk SQLite store.
type testEngine struct {
	store        *sqlite.Store
	clock        *clock.Manual
	notifier     *recordingNotifier
	registry     *prometheus.Registry
	inventory    *InventoryService
	reservations *ReservationService
	payments     *PaymentService
	reaper       *Reaper
}

func newTestEngine(t *testing.T, extra ...Option) *testEngine {
	t.Helper()

	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.NewManual(testStart)
	notifier := &recordingNotifier{}
	reg := prometheus.NewRegistry()
	opts := []Option{
		WithHoldDuration(testHold),
		WithNotifier(notifier),
		WithMetrics(metrics.New(reg)),
		WithReaperBatchSize(50),
	}
	opts = append(opts, extra...)

	allocator := NewAllocator(store, clk, opts...)
	reservations := NewReservationService(store, store, allocator, clk, opts...)
	return &testEngine{
		store:        store,
		clock:        clk,
		notifier:     notifier,
		registry:     reg,
		inventory:    NewInventoryService(store, clk, opts...),
		reservations: reservations,
		payments:     NewPaymentService(store, store, reservations, clk, opts...),
		reaper:       NewReaper(store, reservations, clk, opts...),
	}
}

func (e *testEngine) createTicketType(t *testing.T, quota int) domain.TicketType {
	t.Helper()

	tt, err := e.inventory.CreateTicketType(context.Background(), CreateTicketTypeInput{
		EventID:    "event-1",
		Name:       "General admission",
		Quota:      quota,
		Price:      decimal.RequireFromString("25.00"),
		SalesStart: testStart.Add(-time.Hour),
		SalesEnd:   testStart.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return tt
}

func (e *testEngine) reserve(t *testing.T, ticketTypeID, userID string) Reservation {
	t.Helper()

	res, err := e.reservations.Reserve(context.Background(), ReserveInput{TicketTypeID: ticketTypeID, UserID: userID})
	require.NoError(t, err)
	return res
}

func (e *testEngine) status(t *testing.T, ticketTypeID string) domain.InventoryStatus {
	t.Helper()

	s, err := e.inventory.InventoryStatus(context.Background(), ticketTypeID)
	require.NoError(t, err)
	require.LessOrEqual(t, s.Reserved+s.Sold, s.Quota, "reserved+sold exceeds quota")
	require.Equal(t, s.Quota, s.Available+s.Reserved+s.Sold+s.Used+s.Cancelled, "unit count drifted from quota")
	return s
}

func (e *testEngine) unit(t *testing.T, id string) domain.InventoryUnit {
	t.Helper()

	u, err := e.store.GetUnitForUpdate(context.Background(), id)
	require.NoError(t, err)
	return u
}
