// internal/workers/admission/finalize-admission/config.go
package finalizeadmission

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
		timeout = 45 * time.Second
	}
	return &Config{Timeout: timeout}
}
