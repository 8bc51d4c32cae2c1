package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tazhate/familyplanner/internal/domain"
	"github.com/tazhate/familyplanner/internal/errdef"
	"github.com/tazhate/familyplanner/internal/recurrence"
	"github.com/tazhate/familyplanner/internal/service"
)

// POST /api/events
func (h *handler) createEvent(c *gin.Context) {
	var in service.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid body: %v", err))
		return
	}

	ev, err := h.events.Create(c.Request.Context(), in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusCreated, ev)
}

// GET /api/events/:id
func (h *handler) getEvent(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	ev, err := h.events.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, ev)
}

// PATCH /api/events/:id?scope=series|single&occurrenceStart=
func (h *handler) editEvent(c *gin.Context) {
	id, scope, occurrenceStart, err := occurrenceParams(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var patch domain.EventPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid body: %v", err))
		return
	}

	ev, err := h.events.Edit(c.Request.Context(), id, scope, occurrenceStart, patch)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, ev)
}

// DELETE /api/events/:id?scope=series|single&occurrenceStart=
func (h *handler) deleteEvent(c *gin.Context) {
	id, scope, occurrenceStart, err := occurrenceParams(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.events.Delete(c.Request.Context(), id, scope, occurrenceStart); err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id, "scope": scope})
}

func occurrenceParams(c *gin.Context) (id int64, scope service.Scope, occurrenceStart time.Time, err error) {
	if id, err = pathID(c, "id"); err != nil {
		return
	}
	if scope, err = service.ParseScope(c.Query("scope")); err != nil {
		return
	}
	occurrenceStart, err = queryTime(c, "occurrenceStart")
	return
}

// GET /api/events?from=&to=
func (h *handler) listRange(c *gin.Context) {
	from, to, err := queryWindow(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	events, err := h.events.ListRange(c.Request.Context(), from, to)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, events)
}

// OccurrenceResponse is one concrete occurrence. SeriesID and OriginalStart
// are set for generated occurrences and overrides.
type OccurrenceResponse struct {
	domain.Event
	SeriesID      *int64     `json:"seriesId"`
	OriginalStart *time.Time `json:"originalStart"`
}

// GET /api/occurrences?from=&to=
func (h *handler) occurrences(c *gin.Context) {
	from, to, err := queryWindow(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	res, err := h.events.Occurrences(c.Request.Context(), from, to)
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]OccurrenceResponse, 0, len(res.Occurrences))
	for _, o := range res.Occurrences {
		out = append(out, OccurrenceResponse{
			Event:         o.Event,
			SeriesID:      o.SeriesID,
			OriginalStart: o.OriginalStart,
		})
	}
	truncated := res.Truncated
	if truncated == nil {
		truncated = []int64{}
	}
	respond(c, http.StatusOK, gin.H{"occurrences": out, "truncated": truncated})
}

// GET /api/rule/decode?rule=
func (h *handler) decodeRule(c *gin.Context) {
	respond(c, http.StatusOK, recurrence.Decode(c.Query("rule")))
}

type encodeRequest struct {
	Repeat  domain.RepeatConfig `json:"repeat"`
	StartAt time.Time           `json:"startAt"`
	AllDay  bool                `json:"allDay"`
}

// POST /api/rule/encode
func (h *handler) encodeRule(c *gin.Context) {
	var req encodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errdef.NewBadRequest("invalid body: %v", err))
		return
	}

	if req.StartAt.IsZero() {
		_ = c.Error(errdef.NewBadRequest("startAt is required"))
		return
	}
	start := req.StartAt.In(h.timezone)
	rule, ok := recurrence.Build(req.Repeat, start, req.AllDay)
	if !ok {
		respond(c, http.StatusOK, gin.H{"rule": nil})
		return
	}
	respond(c, http.StatusOK, gin.H{
		"rule":            rule.String(),
		"recurrenceUntil": rule.Until(),
		"recurrenceCount": rule.Count(),
	})
}
