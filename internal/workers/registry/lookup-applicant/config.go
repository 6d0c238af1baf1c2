// internal/workers/registry/lookup-applicant/config.go
package lookupapplicant

import "time"

type Config struct {
	Timeout      time.Duration
	MaxBatchSize int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		MaxBatchSize: 100,
	}
}
