package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	casUpdateSQL   = `(?s)UPDATE stock_items SET.+WHERE id = \$\d+ AND version = \$\d+`
	insertEntrySQL = `INSERT INTO stock_ledger_entries`
	upsertHoldSQL  = `(?s)INSERT INTO stock_reservations.+ON CONFLICT \(id\) DO UPDATE`
)

func newMockRepo(t *testing.T) (*PGRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPGRepository(sqlx.NewDb(db, "pgx")), mock
}

func saleMutation() *stock.Mutation {
	item := newItem("i1", "A", 4)
	item.Version = 2
	return &stock.Mutation{
		Item:            item,
		ExpectedVersion: 1,
		Entry: &model.LedgerEntry{
			ID: "e1", ItemID: "i1", TenantID: "t1", Type: model.TxSale,
			PreviousQuantity: 5, QuantityDelta: -1, NewQuantity: 4, ItemVersion: 2,
		},
	}
}

func TestPGRepository_CASUpdateItem_WritesAllRowsInOneTx(t *testing.T) {
	repo, mock := newMockRepo(t)
	m := saleMutation()
	m.Reservation = &model.Reservation{ID: "r1", ItemID: "i1", TenantID: "t1", Quantity: 1, Status: model.ReservationCommitted}
	m.Holds = []*model.Reservation{{ID: "r0", ItemID: "i1", TenantID: "t1", Quantity: 2, Status: model.ReservationReleased}}

	mock.ExpectBegin()
	mock.ExpectExec(casUpdateSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertEntrySQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsertHoldSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsertHoldSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CASUpdateItem(context.Background(), m))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepository_CASUpdateItem_StaleVersion(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(casUpdateSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CASUpdateItem(context.Background(), saleMutation())
	assert.ErrorIs(t, err, stock.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepository_CASUpdateItem_DuplicateEntryIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(casUpdateSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertEntrySQL).WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "ux_stock_ledger_item_reference"})
	mock.ExpectRollback()

	err := repo.CASUpdateItem(context.Background(), saleMutation())
	assert.ErrorIs(t, err, stock.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepository_CASUpdateItem_CheckViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(casUpdateSQL).WillReturnError(&pgconn.PgError{Code: checkViolation, ConstraintName: "stock_items_quantity_check"})
	mock.ExpectRollback()

	err := repo.CASUpdateItem(context.Background(), saleMutation())
	assert.ErrorIs(t, err, stock.ErrConstraintViolation)
	assert.NotErrorIs(t, err, stock.ErrVersionConflict)
	assert.Contains(t, err.Error(), "stock_items_quantity_check")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepository_CASUpdateItem_HoldCheckViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	m := saleMutation()
	m.Holds = []*model.Reservation{{ID: "r0", ItemID: "i1", Quantity: 0, Status: model.ReservationActive}}

	mock.ExpectBegin()
	mock.ExpectExec(casUpdateSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertEntrySQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsertHoldSQL).WillReturnError(&pgconn.PgError{Code: checkViolation})
	mock.ExpectRollback()

	err := repo.CASUpdateItem(context.Background(), m)
	assert.ErrorIs(t, err, stock.ErrConstraintViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepository_CASUpdateItem_OtherErrorsWrapped(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectExec(casUpdateSQL).WillReturnError(boom)
	mock.ExpectRollback()

	err := repo.CASUpdateItem(context.Background(), saleMutation())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, stock.ErrVersionConflict)
	assert.NotErrorIs(t, err, stock.ErrConstraintViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepository_ListItems_StatusFilter(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "sku", "name", "quantity", "status", "is_active"}).
		AddRow("i1", "t1", "A", "A", int64(1), "LOW_STOCK", true).
		AddRow("i2", "t1", "B", "B", int64(0), "OUT_OF_STOCK", true)
	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT * FROM stock_items WHERE tenant_id = $1 AND status IN ($2, $3) AND is_active ORDER BY sku`)).
		WithArgs("t1", "LOW_STOCK", "OUT_OF_STOCK").
		WillReturnRows(rows)

	items, err := repo.ListItems(context.Background(), &dto.ItemFilters{
		TenantID:   "t1",
		Statuses:   []model.ItemStatus{model.StatusLowStock, model.StatusOutOfStock},
		ActiveOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.StatusLowStock, items[0].Status)
	assert.Equal(t, "B", items[1].SKU)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepository_NotFoundMapping(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM stock_reservations WHERE id = \$1`).
		WithArgs("r1").
		WillReturnError(sql.ErrNoRows)
	_, err := repo.GetReservation(ctx, "r1")
	assert.ErrorIs(t, err, stock.ErrReservationNotFound)

	mock.ExpectQuery(`SELECT \* FROM stock_ledger_entries WHERE item_id = \$1 AND reference = \$2`).
		WithArgs("i1", "order/o1/0").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.GetLedgerEntryByReference(ctx, "i1", "order/o1/0")
	assert.ErrorIs(t, err, stock.ErrEntryNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGRepository_ListActiveReservations(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "item_id", "quantity", "status"}).
		AddRow("r1", "i1", int64(3), "ACTIVE").
		AddRow("r2", "i1", int64(1), "ACTIVE")
	mock.ExpectQuery(`(?s)SELECT \* FROM stock_reservations.+WHERE item_id = \$1 AND status = \$2.+ORDER BY created_at, id`).
		WithArgs("i1", "ACTIVE").
		WillReturnRows(rows)

	got, err := repo.ListActiveReservations(context.Background(), "i1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, int64(3), got[0].Quantity)
	assert.Equal(t, model.ReservationActive, got[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
