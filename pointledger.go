package pointledger

import (
	"github.com/yourusername/pointledger/middleware"
)

// Re-export the budget middleware for convenience
type (
	Budget       = middleware.Budget
	BudgetConfig = middleware.Config
	KeyExtractor = middleware.KeyExtractor
)

var (
	// NewBudget creates a new budget middleware
	NewBudget = middleware.NewBudget

	// ParseKeyExtractor builds a KeyExtractor from its configuration string
	ParseKeyExtractor = middleware.ParseKeyExtractor
)
