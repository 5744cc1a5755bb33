package timeapi

import (
	"github.com/foxseedlab/tasktimer/internal/config"
	"github.com/foxseedlab/tasktimer/internal/timesync"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (timesync.Backend, error) {
		cfg := do.MustInvoke[*config.ClientConfig](i)
		return NewHTTPClient(cfg.APIURL, cfg.Token, cfg.RequestTimeout), nil
	})
}
