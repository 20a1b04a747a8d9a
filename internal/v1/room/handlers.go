package room

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/v1/logging"
	"github.com/parlorhq/parlor/internal/v1/session"
	"github.com/parlorhq/parlor/internal/v1/types"
)

// ConnectSession handles GET /r/{roomID}/ws/{seat}: claim (or reclaim) a
// seat and upgrade the connection. The claim rules are evaluated
// atomically under the room lock before the upgrade:
//   - 404 unknown or non-integer seat, or seat not FREE
//   - 401 no username at all
//   - 403 seat bound to a different username
func (r *Room) ConnectSession(c *gin.Context) {
	seatNumber, err := strconv.Atoi(c.Param("seat"))
	if err != nil {
		c.String(http.StatusNotFound, "No such seat")
		return
	}
	seat := types.SeatID(seatNumber)

	username, ok := r.opts.Cookies.RequestUsername(c)
	if !ok {
		c.String(http.StatusUnauthorized, "Please provide a username")
		return
	}

	r.mu.Lock()
	s, exists := r.sessions[seat]
	if !exists || r.closing {
		r.mu.Unlock()
		c.String(http.StatusNotFound, "No such seat")
		return
	}
	if bound, taken := r.usernames[seat]; taken && bound != username {
		r.mu.Unlock()
		c.String(http.StatusForbidden, "Seat already taken")
		return
	}
	if err := s.Claim(); err != nil {
		r.mu.Unlock()
		c.String(http.StatusNotFound, "Seat already taken")
		return
	}
	if _, bound := r.usernames[seat]; !bound {
		r.usernames[seat] = username
	}
	r.mu.Unlock()
	r.HandleStateChange(&s.Spectator)

	conn, err := r.opts.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error; put the seat back.
		s.ReleaseClaim()
		r.HandleStateChange(&s.Spectator)
		logging.Warn(c.Request.Context(), "Seat upgrade failed",
			zap.Int("seat", int(seat)), zap.Error(err))
		return
	}

	if err := s.OnConnect(conn); err != nil {
		logging.Warn(c.Request.Context(), "Seat connect failed",
			zap.Int("seat", int(seat)), zap.Error(err))
		_ = conn.Close()
		return
	}
	logging.Info(c.Request.Context(), "Seat connected",
		zap.Int("seat", int(seat)), zap.String("username", string(username)))
}

// AddSpectator handles GET /r/{roomID}/ws/watch: attach an ephemeral
// read-only connection. No username required.
func (r *Room) AddSpectator(c *gin.Context) {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		c.String(http.StatusNotFound, "Room is closing")
		return
	}
	s := session.NewSpectator(r, r.opts.QueueLen, &r.wg)
	r.spectators[s] = struct{}{}
	r.mu.Unlock()
	r.HandleStateChange(s)

	conn, err := r.opts.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.HandleClientDisconnect(s)
		return
	}

	_ = s.SendSync(types.NewMessage(r.opts.Greeter))
	if err := s.OnConnect(conn); err != nil {
		_ = conn.Close()
		r.HandleClientDisconnect(s)
	}
}

// HTMLView handles GET /r/{roomID}/html?seat=watch|N: render the current
// view for a viewer. "watch" yields the anonymous view; a numeric seat
// must be owned by the requesting user.
func (r *Room) HTMLView(c *gin.Context) {
	username, ok := r.opts.Cookies.RequestUsername(c)
	if !ok {
		c.String(http.StatusUnauthorized, "Please provide a username")
		return
	}
	seatParam := c.Query("seat")
	if seatParam == "" {
		c.String(http.StatusUnauthorized, "Please provide a seat")
		return
	}

	var viewer *types.SeatID
	if seatParam != "watch" {
		seatNumber, err := strconv.Atoi(seatParam)
		if err != nil {
			c.String(http.StatusBadRequest, "Seat is not an integer")
			return
		}
		seat := types.SeatID(seatNumber)
		if bound, taken := r.SeatUsername(seat); taken && bound != username {
			c.String(http.StatusForbidden, "Seat not owned by authenticated user")
			return
		}
		viewer = &seat
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(r.logic.RenderView(viewer)))
}
