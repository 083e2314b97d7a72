package actions

import (
	"context"
	"errors"
	"net/http"

	"boardsesh_daemon/internal/identity"
	"boardsesh_daemon/internal/realtime"

	"github.com/gobuffalo/buffalo"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Board devices and the web app connect cross-origin.
		return true
	},
}

// WSHandler upgrades the connection and hands it to the gateway. The
// join handshake itself happens over the socket; this layer only
// resolves the optional identity token.
func WSHandler(gateway *realtime.Gateway, provider identity.Provider) buffalo.Handler {
	return func(c buffalo.Context) error {
		r := c.Request()

		var user identity.User
		if token := extractToken(r); token != "" {
			resolved, err := provider.Resolve(context.Background(), token)
			if errors.Is(err, identity.ErrSessionNotFound) {
				log.Error().Msg("Identity session not found for token.")
				return c.Error(http.StatusUnauthorized, errors.New("identity session not found"))
			}
			if err != nil {
				log.Error().Err(err).Msg("Failed to resolve identity token.")
				return c.Error(http.StatusUnauthorized, errors.New("failed to resolve identity token"))
			}
			user = resolved
		}

		conn, err := wsUpgrader.Upgrade(c.Response(), r, nil)
		if err != nil {
			return err
		}

		client := realtime.NewClient(uuid.NewString(), conn)
		gateway.Serve(client, user)
		return nil
	}
}

// extractToken pulls the identity token from the Authorization header
// or, for browser websocket clients that cannot set headers, the query
// string.
func extractToken(r *http.Request) string {
	if token := extractBearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}
