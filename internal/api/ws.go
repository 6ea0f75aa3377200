package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

// handleWS upgrades the connection and streams broadcast events to the
// client as JSON frames. The query parameters project (optional filter)
// and user_id identify the subscription.
func (s *Server) handleWS(c echo.Context) error {
	project := c.QueryParam("project")
	userID := c.QueryParam("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	websocket.Handler(func(ws *websocket.Conn) {
		defer func() { _ = ws.Close() }()

		sub := s.mgr.Subscribe(userID, project)
		defer s.mgr.Unsubscribe(sub)

		s.logger.Info("websocket connected",
			zap.String("user_id", userID),
			zap.String("project", project),
			zap.String("subscriber_id", sub.ID.String()))

		// The read loop exists only to notice the client going away;
		// inbound frames are ignored.
		clientGone := make(chan struct{})
		go func() {
			defer close(clientGone)
			for {
				var discard string
				if err := websocket.Message.Receive(ws, &discard); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case evt, ok := <-sub.Events():
				if !ok {
					return
				}
				if err := websocket.JSON.Send(ws, evt); err != nil {
					s.logger.Debug("websocket send failed",
						zap.String("user_id", userID), zap.Error(err))
					return
				}
			case <-clientGone:
				return
			}
		}
	}).ServeHTTP(c.Response(), c.Request())

	return nil
}
