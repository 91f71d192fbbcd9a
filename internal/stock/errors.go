package stock

import "errors"

var (
	ErrInvalidArgument            = errors.New("invalid argument")
	ErrInsufficientStock          = errors.New("insufficient stock")
	ErrInsufficientAvailableStock = errors.New("insufficient available stock")
	ErrItemNotFound               = errors.New("item not found")
	ErrReservationNotFound        = errors.New("reservation not found")
	ErrReservationNotActive       = errors.New("reservation is not active")
	ErrDuplicateItem              = errors.New("item already exists")
	ErrConcurrentUpdateConflict   = errors.New("concurrent update conflict")
	ErrStoreUnavailable           = errors.New("store unavailable")
	ErrEntryNotFound              = errors.New("ledger entry not found")

	// ErrConstraintViolation is returned by the store when a write breaks a
	// row constraint. Retrying the same write cannot succeed.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrVersionConflict is returned by Repository.CASUpdateItem when the
	// stored version no longer matches the expected one.
	ErrVersionConflict = errors.New("version conflict")
)
