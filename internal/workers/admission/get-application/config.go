// internal/workers/admission/get-application/config.go
package getapplication

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
		timeout = 10 * time.Second
	}
	return &Config{Timeout: timeout}
}
