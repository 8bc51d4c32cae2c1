// Package api exposes the planner over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tazhate/familyplanner/internal/errdef"
	"github.com/tazhate/familyplanner/internal/logger"
	"github.com/tazhate/familyplanner/internal/metrics"
	"github.com/tazhate/familyplanner/internal/service"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Options struct {
	Username string
	Password string

	Events    *service.EventService
	Imports   *service.ImportService
	Reminders *service.ReminderService
	Metrics   *metrics.Metrics
	Timezone  *time.Location
	Log       *logger.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

type handler struct {
	events    *service.EventService
	imports   *service.ImportService
	reminders *service.ReminderService
	timezone  *time.Location
	now       func() time.Time
}

// NewRouter builds the gin engine. The /api group is only registered when
// credentials are configured.
func NewRouter(opts Options) *gin.Engine {
	tz := opts.Timezone
	if tz == nil {
		tz = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Log.WithComponent("api")

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log, opts.Metrics), ErrorHandler(log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	if opts.Username == "" || opts.Password == "" {
		log.Warn("API credentials not set, /api disabled")
		return r
	}

	h := &handler{
		events:    opts.Events,
		imports:   opts.Imports,
		reminders: opts.Reminders,
		timezone:  tz,
		now:       now,
	}

	g := r.Group("/api", gin.BasicAuthForRealm(gin.Accounts{opts.Username: opts.Password}, "FamilyPlanner API"))

	g.POST("/events", h.createEvent)
	g.GET("/events", h.listRange)
	g.GET("/events/:id", h.getEvent)
	g.PATCH("/events/:id", h.editEvent)
	g.DELETE("/events/:id", h.deleteEvent)
	g.GET("/occurrences", h.occurrences)

	g.POST("/import", h.importCalendar)
	g.GET("/calendar.ics", h.calendarFeed)

	g.GET("/reminders/due", h.dueReminders)
	g.POST("/reminders/:id/fire", h.fireReminder)

	g.GET("/rule/decode", h.decodeRule)
	g.POST("/rule/encode", h.encodeRule)

	return r
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, APIResponse{Success: true, Data: data})
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errdef.NewBadRequest("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

// queryTime parses an RFC 3339 query parameter. Missing values yield the zero time.
func queryTime(c *gin.Context, name string) (time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errdef.NewBadRequest("invalid %s %q: expected RFC 3339", name, v)
	}
	return t, nil
}

func queryWindow(c *gin.Context) (from, to time.Time, err error) {
	if from, err = queryTime(c, "from"); err != nil {
		return
	}
	to, err = queryTime(c, "to")
	return
}
