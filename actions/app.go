package actions

import (
	"sync"

	sessionsapi "boardsesh_daemon/actions/sessions"
	"boardsesh_daemon/internal/catalog"
	"boardsesh_daemon/internal/config"
	"boardsesh_daemon/internal/identity"
	"boardsesh_daemon/internal/realtime"
	"boardsesh_daemon/internal/session"

	"github.com/gobuffalo/buffalo"
	"github.com/gobuffalo/envy"
	"github.com/gobuffalo/middleware/contenttype"
	"github.com/gobuffalo/middleware/forcessl"
	"github.com/gobuffalo/middleware/paramlogger"
	"github.com/gobuffalo/x/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/unrolled/secure"
)

var ENV = envy.Get("GO_ENV", "development")

var (
	app     *buffalo.App
	appOnce sync.Once

	gateway *realtime.Gateway
	cleaner *session.Cleaner
)

func App() *buffalo.App {
	appOnce.Do(func() {
		app = buffalo.New(buffalo.Options{
			Env:          ENV,
			SessionStore: sessions.Null{},
			PreWares: []buffalo.PreWare{
				cors.Default().Handler,
			},
			SessionName: "_boardsesh_daemon_session",
		})

		// Middleware
		app.Use(forceSSL())
		app.Use(paramlogger.ParameterLogger)
		app.Use(contenttype.Set("application/json"))

		app.GET("/", HomeHandler)
		app.GET("/healthz", func(ctx buffalo.Context) error {
			return ctx.Render(200, r.JSON(map[string]string{
				"status": "ok",
			}))
		})

		cfg := config.Load()

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})

		// External collaborators: identity provider + climb catalog
		provider := identity.NewRedisProvider(redisClient)
		resolver := catalog.NewRedisCatalog(redisClient)

		// Session core: registry, broadcast fan-out, gateway, cleaner
		registry := session.NewRegistry()
		broadcaster := realtime.NewBroadcaster(registry)
		gateway = realtime.NewGateway(registry, broadcaster, resolver)
		cleaner = session.NewCleaner(registry, cfg.SweepInterval, cfg.IdleThreshold)

		app.GET("/ws", WSHandler(gateway, provider))

		sessionsController := sessionsapi.NewSessionsController(registry, cfg.BoardseshURL)
		sessionsapi.Register(app, sessionsController)
	})

	return app
}

// Gateway exposes the connection gateway to the process entry point for
// the shutdown drain. Valid after App() has run.
func Gateway() *realtime.Gateway { return gateway }

// Cleaner exposes the session cleaner for lifecycle control. Valid after
// App() has run.
func Cleaner() *session.Cleaner { return cleaner }

func forceSSL() buffalo.MiddlewareFunc {
	return forcessl.Middleware(secure.Options{
		SSLRedirect:     false,
		SSLProxyHeaders: map[string]string{"X-Forwarded-Proto": "https"},
	})
}
