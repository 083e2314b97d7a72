package sessions

import (
	"net/url"

	"boardsesh_daemon/internal/session"

	"github.com/gobuffalo/buffalo"
	"github.com/gobuffalo/buffalo/render"
	"github.com/rs/zerolog/log"
)

var renderer = render.New(render.Options{})

type SessionsController struct {
	Registry     *session.Registry
	BoardseshURL string
}

func NewSessionsController(registry *session.Registry, boardseshURL string) *SessionsController {
	return &SessionsController{Registry: registry, BoardseshURL: boardseshURL}
}

// ActiveSession redirects a device scanning the daemon's join link to
// the web frontend, pointed back at this daemon's websocket endpoint.
func (controller *SessionsController) ActiveSession(ctx buffalo.Context) error {
	sessionID, boardPath, ok := controller.Registry.ActiveSession()
	if !ok {
		return ctx.Render(404, renderer.JSON(map[string]any{
			"error": "no active session",
		}))
	}

	host := ctx.Request().Host
	daemonURL := "ws://" + host + "/ws"
	redirectURL := controller.BoardseshURL + boardPath + "?daemonUrl=" + url.QueryEscape(daemonURL)

	log.Info().Str("session", sessionID).Msg("Redirecting join link to active session.")
	return ctx.Redirect(302, redirectURL)
}

// Show returns the full current state of one session.
func (controller *SessionsController) Show(ctx buffalo.Context) error {
	snap, err := controller.Registry.Snapshot(ctx.Param("sessionID"))
	if err != nil {
		return ctx.Render(404, renderer.JSON(map[string]any{
			"error": err.Error(),
		}))
	}
	return ctx.Render(200, renderer.JSON(SessionResponse{Session: snap}))
}
