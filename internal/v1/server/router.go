package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/parlorhq/parlor/internal/v1/ratelimit"
	"github.com/parlorhq/parlor/internal/v1/room"
	"github.com/parlorhq/parlor/internal/v1/types"
)

const roomContextKey = "parlor.room"

// RegisterRoutes wires the server's HTTP surface onto the router. The
// /r/{roomID} sub-routes are dispatched to the room instance by the lookup
// middleware; a missing room is a 404.
func (s *Server) RegisterRoutes(router *gin.Engine, limiter *ratelimit.Limiter) {
	router.POST("/login", limiter.Login(), s.HandleLogin)

	router.POST("/room", limiter.CreateRoom(), s.HandleCreateRoom)
	router.GET("/room/list", s.HandleListRooms)
	router.GET("/room/list/watch", s.HandleWatchRooms)
	router.OPTIONS("/room", s.HandleOptionsRoom)

	roomGroup := router.Group("/r/:roomID")
	roomGroup.Use(s.dispatchRoom)
	{
		// gin's tree cannot mix the static "watch" with the :seat param,
		// so one route serves both ws endpoints.
		roomGroup.GET("/ws/:seat", roomHandler(connectWS))
		roomGroup.GET("/html", roomHandler((*room.Room).HTMLView))
	}
}

// connectWS serves GET /ws/watch (spectator) and GET /ws/{seat} (session).
func connectWS(r *room.Room, c *gin.Context) {
	if c.Param("seat") == "watch" {
		r.AddSpectator(c)
		return
	}
	r.ConnectSession(c)
}

// dispatchRoom resolves the roomID parameter to a live room and stores it
// in the request context.
func (s *Server) dispatchRoom(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("roomID"))
	if err != nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	r, ok := s.RoomByID(types.RoomID(id))
	if !ok {
		c.String(http.StatusNotFound, "Room %d not found", id)
		c.Abort()
		return
	}
	c.Set(roomContextKey, r)
	c.Next()
}

func roomHandler(fn func(*room.Room, *gin.Context)) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.MustGet(roomContextKey).(*room.Room)
		fn(r, c)
	}
}
