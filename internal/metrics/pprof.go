package metrics

import (
	"errors"
	"runtime"

	"tokentable/internal/config"

	"github.com/grafana/pyroscope-go"
)

// mutex and block rates used while profiling; store writers contend on one lock
const (
	mutexProfileFraction = 5
	blockProfileRate     = 5
)

type PProfConfig struct {
	Enabled       bool
	AppInstanceID string
	AppName       string
	ServerAddr    string
	AuthToken     string
	Tags          map[string]string
}

func PProfFromConfig(cfg *config.Config) *PProfConfig {
	p := cfg.Metrics.Pyroscope
	return &PProfConfig{
		Enabled:       p.Enabled,
		AppInstanceID: cfg.App.InstanceID,
		AppName:       cfg.App.Name,
		ServerAddr:    p.ServerAddr,
		AuthToken:     p.AuthToken,
		Tags:          p.Tags,
	}
}

// InitPProf starts continuous profiling; disabled config returns a nil profiler
func InitPProf(cfg *PProfConfig) (*pyroscope.Profiler, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.ServerAddr == "" {
		return nil, errors.New("pyroscope server address is required")
	}

	tags := make(map[string]string, len(cfg.Tags)+1)
	for k, v := range cfg.Tags {
		tags[k] = v
	}
	tags["instance"] = cfg.AppInstanceID

	runtime.SetMutexProfileFraction(mutexProfileFraction)
	runtime.SetBlockProfileRate(blockProfileRate)

	return pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.AppName,
		ServerAddress:   cfg.ServerAddr,
		AuthToken:       cfg.AuthToken,
		Tags:            tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileGoroutines,

			// derivation runs under the store lock
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
	})
}
