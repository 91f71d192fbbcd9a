package janitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/repository"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/usecase"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notActive(err error) bool { return errors.Is(err, stock.ErrReservationNotActive) }

func TestSweep_ExpiresDueHolds(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNop()
	repo := repository.NewMemoryRepository()
	uc := usecase.NewStockUseCase(repo, usecase.Deps{}, usecase.Config{}, log)

	item, err := uc.CreateItem(ctx, &dto.CreateItemInput{TenantID: "t1", SKU: "J", Name: "J", Unit: model.UnitPiece, InitialQuantity: 10})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := uc.Reserve(ctx, &dto.ReserveInput{TenantID: "t1", ItemID: item.ID, Quantity: 1, TTL: time.Minute})
		require.NoError(t, err)
	}
	keep, err := uc.Reserve(ctx, &dto.ReserveInput{TenantID: "t1", ItemID: item.ID, Quantity: 2, TTL: time.Hour})
	require.NoError(t, err)

	j := New(repo, uc, Config{BatchSize: 2}, notActive, log)
	j.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	n, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ReservedQuantity)

	held, err := repo.GetReservation(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationActive, held.Status)

	n, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type staticStore struct {
	holds []model.Reservation
	err   error
}

func (s *staticStore) ListExpiredReservations(context.Context, time.Time, int) ([]model.Reservation, error) {
	return s.holds, s.err
}

type failingExpirer struct {
	err   error
	calls int
}

func (f *failingExpirer) ExpireReservation(context.Context, string) (*model.Reservation, error) {
	f.calls++
	return nil, f.err
}

func TestSweep_StopsWithoutProgress(t *testing.T) {
	store := &staticStore{holds: []model.Reservation{{ID: "a"}, {ID: "b"}}}
	exp := &failingExpirer{err: stock.ErrReservationNotActive}
	j := New(store, exp, Config{BatchSize: 2}, notActive, logger.NewNop())

	n, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, exp.calls)
}

func TestSweep_StoreError(t *testing.T) {
	j := New(&staticStore{err: errors.New("db down")}, &failingExpirer{}, Config{}, nil, logger.NewNop())
	_, err := j.Sweep(context.Background())
	assert.Error(t, err)
}

func TestStart_StopsOnCancel(t *testing.T) {
	j := New(&staticStore{}, &failingExpirer{}, Config{Interval: 5 * time.Millisecond}, nil, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
