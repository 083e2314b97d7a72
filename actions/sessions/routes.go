package sessions

import "github.com/gobuffalo/buffalo"

func Register(app *buffalo.App, controller *SessionsController) {
	app.GET("/sessions/active", controller.ActiveSession)
	app.GET("/sessions/{sessionID}", controller.Show)
}
