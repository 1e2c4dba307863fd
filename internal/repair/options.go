package repair

import "github.com/aura-crm/backend/config"

// OptionsFrom maps the repair config section to service options.
func OptionsFrom(c config.RepairConfig) Options {
	return Options{
		FallbackEnabled: c.FallbackEnabled,
		FallbackName:    c.FallbackName,
		RatePerSecond:   c.RatePerSecond,
		MaxAttempts:     c.MaxAttempts,
	}
}
