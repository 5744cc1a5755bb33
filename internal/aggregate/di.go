package aggregate

import (
	"github.com/foxseedlab/tasktimer/internal/tracking"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Engine, error) {
		svc := do.MustInvoke[*tracking.Service](i)
		return NewEngine(svc, svc), nil
	})
}
