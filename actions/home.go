package actions

import (
	"github.com/gobuffalo/buffalo"
	"github.com/gobuffalo/buffalo/render"
)

var r = render.New(render.Options{})

// HomeHandler identifies the daemon to anything probing the root path.
func HomeHandler(c buffalo.Context) error {
	return c.Render(200, r.JSON(map[string]string{
		"service": "boardsesh-daemon",
	}))
}
