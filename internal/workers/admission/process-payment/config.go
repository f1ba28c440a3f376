// internal/workers/admission/process-payment/config.go
package processpayment

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
		timeout = 30 * time.Second
	}
	return &Config{Timeout: timeout}
}
