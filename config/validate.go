package config

import "fmt"

// Validate enforces mutual-exclusion and range rules across pacing
// mode flags. Configuration errors abort before any workload starts.
func Validate(c *Config) error {
	if c.RateSet && c.Rate == 0 {
		return fmt.Errorf("config: -r/--rate must be greater than 0")
	}
	if c.QPSSet && c.QPS == 0 && c.Duration > 0 {
		return fmt.Errorf("config: --qps must be greater than 0")
	}
	if c.Rate > 0 && c.Duration > 0 {
		return fmt.Errorf("config: -r/--rate and -D/--duration are mutually exclusive")
	}
	if c.Rate > 0 && c.QPS > 0 {
		return fmt.Errorf("config: -r/--rate and --qps are mutually exclusive")
	}
	if c.QPS > 0 && c.Duration == 0 {
		return fmt.Errorf("config: --qps requires -D/--duration")
	}

	if c.Nthreads == 0 {
		return fmt.Errorf("config: -t/--threads must be at least 1")
	}

	if c.Rate > 0 {
		if c.Rate < c.Nthreads {
			return fmt.Errorf("config: -r/--rate (%d) must be >= -t/--threads (%d)", c.Rate, c.Nthreads)
		}
		if c.Rate > c.Nclients {
			return fmt.Errorf("config: -r/--rate (%d) must be <= -c/--clients (%d)", c.Rate, c.Nclients)
		}
	}

	if c.QPS == 0 && c.Nclients < c.Nthreads {
		return fmt.Errorf("config: -c/--clients (%d) must be >= -t/--threads (%d)", c.Nclients, c.Nthreads)
	}

	if c.Nclients == 0 {
		return fmt.Errorf("config: -c/--clients must be at least 1")
	}

	if len(c.Targets) == 0 {
		return fmt.Errorf("config: at least one target URI is required")
	}

	return nil
}
