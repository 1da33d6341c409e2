package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Order ledger errors
	ErrDuplicateOrder         = errors.New("order_id already exists")
	ErrUnknownOrder           = errors.New("order not found for order_id")
	ErrStaleOrder             = errors.New("order state changed concurrently")
	ErrConflictingTransaction = errors.New("order already paid with a different transaction")
	ErrIllegalTransition      = errors.New("illegal order status transition")
	ErrOrphanOrder            = errors.New("order references a missing user")

	// Gateway envelope errors
	ErrMisconfiguredGateway = errors.New("gateway public/private key not configured")
	ErrMissingFields        = errors.New("callback is missing data or signature")
	ErrInvalidEnvelope      = errors.New("callback data is not a valid envelope")
	ErrSignatureMismatch    = errors.New("callback signature does not match")
	ErrUpstreamUnreachable  = errors.New("gateway is unreachable")

	// Activation errors
	ErrActivationFailed = errors.New("subscription activation failed")

	// Infra execution errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
