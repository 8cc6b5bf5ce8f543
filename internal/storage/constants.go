package db

import (
	"time"
)

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10
)

// Postgres error codes
const (
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Initial version of a freshly inserted result row.
const initialVersion = 1

// Invocation listing default
const defaultInvocationLimit = 20
