package timesync

import (
	"github.com/foxseedlab/tasktimer/internal/bus"
	"github.com/foxseedlab/tasktimer/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*bus.Bus, error) {
		return bus.New(), nil
	})
	do.Provide(injector, func(i do.Injector) (*Client, error) {
		cfg := do.MustInvoke[*config.ClientConfig](i)
		backend := do.MustInvoke[Backend](i)
		events := do.MustInvoke[*bus.Bus](i)
		return New(backend, events, Settings{
			BatchWindow:     cfg.BatchWindow,
			TimeCacheTTL:    cfg.TimeCacheTTL,
			SessionCacheTTL: cfg.SessionCacheTTL,
			CommentCacheTTL: cfg.CommentCacheTTL,
			RequestTimeout:  cfg.RequestTimeout,
			PollInterval:    cfg.SessionCacheTTL,
		}), nil
	})
}
