package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tazhate/familyplanner/internal/errdef"
	"github.com/tazhate/familyplanner/internal/service"
)

// GET /api/reminders/due?windowMinutes=
func (h *handler) dueReminders(c *gin.Context) {
	window := service.DefaultWindowMinutes
	if v := c.Query("windowMinutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			_ = c.Error(errdef.NewBadRequest("invalid windowMinutes %q", v))
			return
		}
		window = n
	}

	due, err := h.reminders.ComputeDue(c.Request.Context(), h.now(), window)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, due)
}

// POST /api/reminders/:id/fire
func (h *handler) fireReminder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		_ = c.Error(err)
		return
	}

	r, err := h.reminders.Fire(c.Request.Context(), id, h.now())
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, r)
}
