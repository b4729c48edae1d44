package orchestrator

import "time"

// Config controls snapshot fan-out.
type Config struct {
	// FetchTimeout bounds one provider fetch end to end.
	FetchTimeout time.Duration
	// MaxParallel bounds how many provider fetches run at once.
	MaxParallel int
}

func DefaultConfig() Config {
	return Config{
		FetchTimeout: 2 * time.Minute,
		MaxParallel:  8,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaults.FetchTimeout
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = defaults.MaxParallel
	}
	return c
}
