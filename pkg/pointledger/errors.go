package pointledger

import "github.com/yourusername/pointledger/core"

// Error kinds returned by ledger operations. Match them with errors.Is.
var (
	// ErrInvalidKey is returned when the key policy rejects a key
	ErrInvalidKey = core.ErrInvalidKey

	// ErrNonNumericValue is returned for unusable values, stored or supplied
	ErrNonNumericValue = core.ErrNonNumericValue

	// ErrNonNumericChange is returned when Add receives an unusable change
	ErrNonNumericChange = core.ErrNonNumericChange

	// ErrAboveMax is returned when a write would exceed the ledger's max
	ErrAboveMax = core.ErrAboveMax

	// ErrBelowMin is returned when a write would go under the ledger's min
	ErrBelowMin = core.ErrBelowMin

	// ErrNonExistentKey is returned when the key is not in the ledger
	ErrNonExistentKey = core.ErrNonExistentKey

	// ErrConflictExists is returned by Create for a key already present
	ErrConflictExists = core.ErrConflictExists

	// ErrConflictTombstoned is returned by Create for a key deleted while logging
	ErrConflictTombstoned = core.ErrConflictTombstoned

	// ErrInvalidConfig is returned when a ledger cannot be constructed
	ErrInvalidConfig = core.ErrInvalidConfig

	// ErrInvalidWeights is returned by WSum for empty or non-finite weights
	ErrInvalidWeights = core.ErrInvalidWeights

	// ErrStore is returned when the backing store fails
	ErrStore = core.ErrStore
)
