package middleware

import (
	"github.com/OFFIS-RIT/kgraph/internal/app"
	"github.com/OFFIS-RIT/kgraph/internal/queue"
	"github.com/OFFIS-RIT/kgraph/internal/storage"

	"github.com/labstack/echo/v4"
)

// App is what every handler can reach. Queue and Bucket are optional:
// without a queue work runs inline, without a bucket exports are only
// streamed.
type App struct {
	*app.App
	Queue  queue.Publisher
	Bucket *storage.Bucket
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(a *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: a})
		}
	}
}

// GetApp returns the App of a request handled behind AppContextMiddleware.
func GetApp(c echo.Context) *App {
	return c.(*AppContext).App
}
