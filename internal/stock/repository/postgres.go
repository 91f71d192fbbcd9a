package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock"
	"github.com/fekuna/omnipos-stock-ledger/internal/stock/dto"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetItem(ctx context.Context, id string) (*model.Item, error) {
	var item model.Item
	err := r.DB.GetContext(ctx, &item, `SELECT * FROM stock_items WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stock.ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *PGRepository) ListItems(ctx context.Context, f *dto.ItemFilters) ([]model.Item, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.TenantID != "" {
		conditions = append(conditions, "tenant_id = :tenant_id")
		args["tenant_id"] = f.TenantID
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		conditions = append(conditions, "status IN (:statuses)")
		args["statuses"] = statuses
	}
	if f.ActiveOnly {
		conditions = append(conditions, "is_active")
	}
	if f.ExpiringAfter != nil || f.ExpiringBefore != nil {
		conditions = append(conditions, "is_expirable AND expiry_date IS NOT NULL")
	}
	if f.ExpiringAfter != nil {
		conditions = append(conditions, "expiry_date >= :expiring_after")
		args["expiring_after"] = *f.ExpiringAfter
	}
	if f.ExpiringBefore != nil {
		conditions = append(conditions, "expiry_date <= :expiring_before")
		args["expiring_before"] = *f.ExpiringBefore
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query, bound, err := sqlx.Named("SELECT * FROM stock_items"+whereClause+" ORDER BY sku", args)
	if err != nil {
		return nil, err
	}
	query, bound, err = sqlx.In(query, bound...)
	if err != nil {
		return nil, err
	}
	query = r.DB.Rebind(query)

	items := []model.Item{}
	err = r.DB.SelectContext(ctx, &items, query, bound...)
	return items, err
}

func (r *PGRepository) IsSKUUnique(ctx context.Context, tenantID, sku string) (bool, error) {
	var exists bool
	err := r.DB.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM stock_items WHERE tenant_id = $1 AND sku = $2)`, tenantID, sku)
	return !exists, err
}

func (r *PGRepository) IsBarcodeUnique(ctx context.Context, tenantID, barcode string) (bool, error) {
	var exists bool
	err := r.DB.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM stock_items WHERE tenant_id = $1 AND barcode = $2)`, tenantID, barcode)
	return !exists, err
}

const insertItemQuery = `
    INSERT INTO stock_items (
        id, tenant_id, sku, barcode, name,
        quantity, min_quantity, max_quantity, reserved_quantity, unit,
        cost_price, selling_price, status,
        is_expirable, expiry_date, is_maintainable, next_maintenance_date,
        is_active, deleted_at, version, created_at, updated_at
    )
    VALUES (
        :id, :tenant_id, :sku, :barcode, :name,
        :quantity, :min_quantity, :max_quantity, :reserved_quantity, :unit,
        :cost_price, :selling_price, :status,
        :is_expirable, :expiry_date, :is_maintainable, :next_maintenance_date,
        :is_active, :deleted_at, :version, :created_at, :updated_at
    )
`

const insertEntryQuery = `
    INSERT INTO stock_ledger_entries (
        id, item_id, tenant_id, type,
        quantity_delta, previous_quantity, new_quantity,
        unit_price, total_amount, actor_id, location, remarks, reference,
        item_version, created_at
    )
    VALUES (
        :id, :item_id, :tenant_id, :type,
        :quantity_delta, :previous_quantity, :new_quantity,
        :unit_price, :total_amount, :actor_id, :location, :remarks, :reference,
        :item_version, :created_at
    )
`

// The version predicate is the compare-and-swap: a concurrent writer that
// committed first leaves zero rows matching.
const casItemQuery = `
    UPDATE stock_items SET
        name = :name,
        quantity = :quantity,
        min_quantity = :min_quantity,
        max_quantity = :max_quantity,
        reserved_quantity = :reserved_quantity,
        cost_price = :cost_price,
        selling_price = :selling_price,
        status = :status,
        is_expirable = :is_expirable,
        expiry_date = :expiry_date,
        is_maintainable = :is_maintainable,
        next_maintenance_date = :next_maintenance_date,
        is_active = :is_active,
        deleted_at = :deleted_at,
        version = :version,
        updated_at = :updated_at
    WHERE id = :id AND version = :expected_version
`

const upsertReservationQuery = `
    INSERT INTO stock_reservations (
        id, item_id, tenant_id, quantity, status, expires_at, created_at, updated_at
    )
    VALUES (
        :id, :item_id, :tenant_id, :quantity, :status, :expires_at, :created_at, :updated_at
    )
    ON CONFLICT (id) DO UPDATE SET
        quantity = EXCLUDED.quantity,
        status = EXCLUDED.status,
        updated_at = EXCLUDED.updated_at
`

type casItem struct {
	model.Item
	ExpectedVersion int64 `db:"expected_version"`
}

func (r *PGRepository) CreateItem(ctx context.Context, item *model.Item, entry *model.LedgerEntry) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertItemQuery, item); err != nil {
		if isUniqueViolation(err) {
			return stock.ErrDuplicateItem
		}
		return wrapWriteErr("failed to insert item", err)
	}

	if entry != nil {
		if _, err := tx.NamedExecContext(ctx, insertEntryQuery, entry); err != nil {
			return wrapWriteErr("failed to append ledger entry", err)
		}
	}

	return tx.Commit()
}

func (r *PGRepository) CASUpdateItem(ctx context.Context, m *stock.Mutation) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Conditional item update
	res, err := tx.NamedExecContext(ctx, casItemQuery, casItem{Item: *m.Item, ExpectedVersion: m.ExpectedVersion})
	if err != nil {
		return wrapWriteErr("failed to update item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return stock.ErrVersionConflict
	}

	// 2. Ledger entry. A duplicate (item_id, item_version) or
	// (item_id, reference) means another writer got there first.
	if m.Entry != nil {
		if _, err := tx.NamedExecContext(ctx, insertEntryQuery, m.Entry); err != nil {
			if isUniqueViolation(err) {
				return stock.ErrVersionConflict
			}
			return wrapWriteErr("failed to append ledger entry", err)
		}
	}

	// 3. Holds
	holds := m.Holds
	if m.Reservation != nil {
		holds = append([]*model.Reservation{m.Reservation}, holds...)
	}
	for _, h := range holds {
		if _, err := tx.NamedExecContext(ctx, upsertReservationQuery, h); err != nil {
			return wrapWriteErr("failed to save reservation", err)
		}
	}

	return tx.Commit()
}

func (r *PGRepository) ListLedgerEntries(ctx context.Context, itemID string, rng dto.LedgerRange) ([]model.LedgerEntry, error) {
	query := `SELECT * FROM stock_ledger_entries WHERE item_id = $1`
	args := []interface{}{itemID}

	if rng.From != nil {
		args = append(args, *rng.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if rng.To != nil {
		args = append(args, *rng.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY item_version ASC"

	entries := []model.LedgerEntry{}
	err := r.DB.SelectContext(ctx, &entries, query, args...)
	return entries, err
}

func (r *PGRepository) GetLedgerEntryByReference(ctx context.Context, itemID, reference string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.DB.GetContext(ctx, &entry,
		`SELECT * FROM stock_ledger_entries WHERE item_id = $1 AND reference = $2`, itemID, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stock.ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *PGRepository) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var res model.Reservation
	err := r.DB.GetContext(ctx, &res, `SELECT * FROM stock_reservations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stock.ErrReservationNotFound
		}
		return nil, err
	}
	return &res, nil
}

func (r *PGRepository) ListActiveReservations(ctx context.Context, itemID string) ([]model.Reservation, error) {
	out := []model.Reservation{}
	err := r.DB.SelectContext(ctx, &out, `
        SELECT * FROM stock_reservations
        WHERE item_id = $1 AND status = $2
        ORDER BY created_at, id
    `, itemID, string(model.ReservationActive))
	return out, err
}

func (r *PGRepository) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	out := []model.Reservation{}
	err := r.DB.SelectContext(ctx, &out, `
        SELECT * FROM stock_reservations
        WHERE status = $1 AND expires_at <= $2
        ORDER BY expires_at
        LIMIT $3
    `, string(model.ReservationActive), now, limit)
	return out, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func wrapWriteErr(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == checkViolation {
		return fmt.Errorf("%w: %s: %s", stock.ErrConstraintViolation, msg, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

var _ stock.Repository = (*PGRepository)(nil)
