package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/v1/auth"
	"github.com/parlorhq/parlor/internal/v1/game"
	"github.com/parlorhq/parlor/internal/v1/logging"
)

const heartbeatInterval = 15 * time.Second

// HandleCreateRoom handles POST /room.
func (s *Server) HandleCreateRoom(c *gin.Context) {
	var req game.RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.CreateRoom(&req)
	if err != nil {
		logging.Warn(c.Request.Context(), "Room creation rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"roomID": id})
}

// HandleListRooms handles GET /room/list.
func (s *Server) HandleListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, s.RoomList())
}

// HandleOptionsRoom handles OPTIONS /room: introspection of the games the
// registry can host.
func (s *Server) HandleOptionsRoom(c *gin.Context) {
	c.Header("Allow", "POST")
	c.JSON(http.StatusOK, gin.H{"enum": s.registry.Names()})
}

// HandleLogin handles POST /login: sets the signed username cookie.
func (s *Server) HandleLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username, err := s.cookies.Sanitize(body.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := s.cookies.Issue(username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue cookie"})
		return
	}
	c.SetCookie(auth.CookieName, token, int((30 * 24 * time.Hour).Seconds()), "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// HandleWatchRooms handles GET /room/list/watch: a server-sent event
// stream of lobby events. Heartbeat comments keep intermediaries from
// timing the stream out; server shutdown ends the stream gracefully.
func (s *Server) HandleWatchRooms(c *gin.Context) {
	ch, cancel := s.lobby.subscribe()
	if ch == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			return true
		case event, ok := <-ch:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.name, event.data)
			return true
		}
	})
}
