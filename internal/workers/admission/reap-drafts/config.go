// internal/workers/admission/reap-drafts/config.go
package reapdrafts

import (
	"time"

	"admission-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(appCfg *config.Config) *Config {
	timeout := config.GetDuration(config.GetWorkerConfig(appCfg, TaskType).Timeout)
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Config{Timeout: timeout}
}
