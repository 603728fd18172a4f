package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// Runtime holds ambient operational tuning that the RWhois on-disk
// format never specified (worker-pool sizing, profiling) because the
// original daemon used OS processes rather than a bounded worker
// pool. It is optional: a missing file simply means defaults apply.
//
// Modelled directly on the teacher's config.Config/Unmarshal/validate
// shape (yaml.v2, a defaulted struct, a validate() pass).
type Runtime struct {
	WorkerPoolSize    int `yaml:"worker_pool_size"`
	WorkerPoolMinIdle int `yaml:"worker_pool_min_idle"`
	LockRetries       int `yaml:"lock_retry_attempts"`
	LockRetryDelayMS  int `yaml:"lock_retry_delay_ms"`
	ProfileMode       string `yaml:"profile_mode"` // "", "cpu", "mem"
}

// DefaultRuntime mirrors teacher's Unmarshal default-struct pattern.
func DefaultRuntime() *Runtime {
	return &Runtime{
		WorkerPoolSize:    40,
		WorkerPoolMinIdle: 4,
		LockRetries:       10,
		LockRetryDelayMS:  200,
	}
}

// UnmarshalRuntime parses runtime-tuning YAML, applying defaults
// first so a partial file still produces a usable Runtime.
func UnmarshalRuntime(content []byte) (*Runtime, error) {
	rt := DefaultRuntime()
	if err := yaml.Unmarshal(content, rt); err != nil {
		return nil, fmt.Errorf("invalid runtime config: %w", err)
	}
	if err := rt.validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

// LoadRuntimeFile loads the optional rwhoisd.runtime.yaml file. A
// missing file is not an error; it returns DefaultRuntime().
func LoadRuntimeFile(path string) (*Runtime, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRuntime(), nil
		}
		return nil, fmt.Errorf("read runtime config %s: %w", path, err)
	}
	return UnmarshalRuntime(content)
}

func (rt *Runtime) validate() error {
	if rt.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be >= 1")
	}
	if rt.WorkerPoolMinIdle < 0 || rt.WorkerPoolMinIdle > rt.WorkerPoolSize {
		return fmt.Errorf("worker_pool_min_idle must be between 0 and worker_pool_size")
	}
	switch rt.ProfileMode {
	case "", "cpu", "mem":
	default:
		return fmt.Errorf("profile_mode must be one of '', 'cpu', 'mem'")
	}
	return nil
}
