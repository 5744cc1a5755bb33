package api

import (
	"github.com/foxseedlab/tasktimer/internal/aggregate"
	"github.com/foxseedlab/tasktimer/internal/config"
	"github.com/foxseedlab/tasktimer/internal/tracking"
	"github.com/gin-gonic/gin"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*gin.Engine, error) {
		cfg := do.MustInvoke[*config.Config](i)
		svc := do.MustInvoke[*tracking.Service](i)
		engine := do.MustInvoke[*aggregate.Engine](i)
		return NewRouter(RouterConfig{
			JWTSecret:   cfg.JWTSecret,
			JWTIssuer:   cfg.JWTIssuer,
			Development: cfg.IsDevelopment(),
		}, NewTimerHandler(svc, engine)), nil
	})
}
