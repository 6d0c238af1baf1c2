// internal/workers/registry/validate-lookup-request/config.go
package validatelookuprequest

import "time"

type Config struct {
	Timeout      time.Duration
	MaxBatchSize int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      10 * time.Second,
		MaxBatchSize: 100,
	}
}
