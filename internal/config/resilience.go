// Package config holds retry budgets for calls to Google.
package config

import (
	"time"

	"supply_tracker/internal/retry"
)

// ResilienceConfig only covers reads. Whole-sheet writes are not idempotent
// and are never retried.
type ResilienceConfig struct {
	SheetOpen retry.Config
	SheetRead retry.Config
	Notify    retry.Config
}

var DefaultResilienceConfig = ResilienceConfig{
	SheetOpen: retry.Config{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Timeout:    20 * time.Second,
	},
	SheetRead: retry.Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    15 * time.Second,
	},
	Notify: retry.Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    10 * time.Second,
	},
}

// WithAttempts returns c with MaxRetries overridden when attempts > 0.
func WithAttempts(c retry.Config, attempts int) retry.Config {
	if attempts > 0 {
		c.MaxRetries = attempts - 1
	}
	return c
}
