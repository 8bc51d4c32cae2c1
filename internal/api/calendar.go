package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tazhate/familyplanner/internal/errdef"
	"github.com/tazhate/familyplanner/internal/ics"
)

// POST /api/import
// Accepts the raw document as the body or as a multipart "file" field.
func (h *handler) importCalendar(c *gin.Context) {
	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			_ = c.Error(errdef.NewBadRequest("missing file: %v", err))
			return
		}
		f, err := fh.Open()
		if err != nil {
			_ = c.Error(err)
			return
		}
		defer f.Close()
		body = f
	}

	res, err := h.imports.Import(c.Request.Context(), body)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusCreated, res)
}

// GET /api/calendar.ics
func (h *handler) calendarFeed(c *gin.Context) {
	events, err := h.events.All(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Header("Content-Type", "text/calendar; charset=utf-8")
	c.Status(http.StatusOK)
	if err := ics.Write(c.Writer, ics.NewCalendar(events, h.timezone, h.now())); err != nil {
		_ = c.Error(err)
	}
}
