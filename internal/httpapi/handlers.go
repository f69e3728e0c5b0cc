// Package httpapi implements the control-plane HTTP surface of
// SPEC_FULL.md §4.6: CRUD over watches plus restart/stop/check/status
// per-watch operations and a live status stream, grounded on
// collect/main.go's router wiring and backend/response's envelope.
package httpapi

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codesprinters/twillmanager/internal/config"
	"github.com/codesprinters/twillmanager/internal/database"
	"github.com/codesprinters/twillmanager/internal/logger"
	"github.com/codesprinters/twillmanager/internal/mailer"
	"github.com/codesprinters/twillmanager/internal/models"
	"github.com/codesprinters/twillmanager/internal/notifyqueue"
	"github.com/codesprinters/twillmanager/internal/response"
	"github.com/codesprinters/twillmanager/internal/store"
	"github.com/codesprinters/twillmanager/internal/supervisor"
)

// Handlers holds the dependencies shared by every control-plane route.
type Handlers struct {
	db          *sql.DB
	sup         *supervisor.Supervisor
	notifyQueue *notifyqueue.Queue
}

// NewHandlers builds the control-plane handler set. notifyQueue may be nil
// when the retry queue's backing Redis was unavailable at startup, in
// which case TestAlertWatch reports 503 instead of panicking.
func NewHandlers(db *sql.DB, sup *supervisor.Supervisor, notifyQueue *notifyqueue.Queue) *Handlers {
	return &Handlers{db: db, sup: sup, notifyQueue: notifyQueue}
}

// WatchRequest is the validated create/update payload.
type WatchRequest struct {
	Name             string `json:"name" binding:"required"`
	Interval         int    `json:"interval" binding:"required,min=1"`
	Script           string `json:"script" binding:"required"`
	Emails           string `json:"emails"`
	ReminderInterval *int   `json:"reminder_interval"`
}

func watchIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("invalid watch id", nil))
		return 0, false
	}
	return id, true
}

// ListWatches handles GET /api/watches.
func (h *Handlers) ListWatches(c *gin.Context) {
	watches, err := store.LoadAll(c.Request.Context(), h.db)
	if err != nil {
		logger.Error().Err(err).Str("operation", "list_watches").Msg("failed to load watches")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to load watches", nil))
		return
	}
	c.JSON(http.StatusOK, response.OK("watches retrieved successfully", watches))
}

// CreateWatch handles POST /api/watches.
func (h *Handlers) CreateWatch(c *gin.Context) {
	var req WatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ValidationBadRequest(err))
		return
	}

	w := &models.Watch{
		Name:             req.Name,
		Interval:         req.Interval,
		Script:           req.Script,
		Emails:           req.Emails,
		Status:           models.StatusUnknown,
		ReminderInterval: req.ReminderInterval,
	}

	if err := store.Insert(c.Request.Context(), h.db, w); err != nil {
		if err == store.ErrDuplicateName {
			c.JSON(http.StatusConflict, response.Conflict("a watch with this name already exists", nil))
			return
		}
		logger.Error().Err(err).Str("operation", "create_watch").Msg("failed to insert watch")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to create watch", nil))
		return
	}

	if err := h.sup.Add(w.ID); err != nil {
		logger.Error().Err(err).Int64("watch_id", w.ID).Str("operation", "create_watch").Msg("failed to start worker")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("watch created but worker failed to start", w))
		return
	}

	logger.LogBusinessOperation(c, "watches", "create", "watch", strconv.FormatInt(w.ID, 10), true, nil)
	c.JSON(http.StatusCreated, response.Created("watch created successfully", w))
}

// GetWatch handles GET /api/watches/:id.
func (h *Handlers) GetWatch(c *gin.Context) {
	id, ok := watchIDParam(c)
	if !ok {
		return
	}

	w, err := store.Load(c.Request.Context(), h.db, id)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, response.NotFound("watch not found", nil))
		return
	}
	if err != nil {
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "get_watch").Msg("failed to load watch")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to load watch", nil))
		return
	}

	alive, building := h.sup.WorkerStatusDict(id)
	c.JSON(http.StatusOK, response.OK("watch retrieved successfully", gin.H{
		"watch":    w,
		"alive":    alive,
		"building": building,
	}))
}

// UpdateWatch handles PUT /api/watches/:id.
func (h *Handlers) UpdateWatch(c *gin.Context) {
	id, ok := watchIDParam(c)
	if !ok {
		return
	}

	var req WatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ValidationBadRequest(err))
		return
	}

	existing, err := store.Load(c.Request.Context(), h.db, id)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, response.NotFound("watch not found", nil))
		return
	}
	if err != nil {
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "update_watch").Msg("failed to load watch")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to load watch", nil))
		return
	}

	existing.Name = req.Name
	existing.Interval = req.Interval
	existing.Script = req.Script
	existing.Emails = req.Emails
	existing.ReminderInterval = req.ReminderInterval

	if err := store.Update(c.Request.Context(), h.db, existing); err != nil {
		if err == store.ErrDuplicateName {
			c.JSON(http.StatusConflict, response.Conflict("a watch with this name already exists", nil))
			return
		}
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "update_watch").Msg("failed to update watch")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to update watch", nil))
		return
	}

	if err := h.sup.Restart(id); err != nil {
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "update_watch").Msg("failed to restart worker")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("watch updated but worker failed to restart", existing))
		return
	}

	logger.LogBusinessOperation(c, "watches", "update", "watch", strconv.FormatInt(id, 10), true, nil)
	c.JSON(http.StatusOK, response.OK("watch updated successfully", existing))
}

// DeleteWatch handles DELETE /api/watches/:id.
func (h *Handlers) DeleteWatch(c *gin.Context) {
	id, ok := watchIDParam(c)
	if !ok {
		return
	}

	if err := h.sup.Remove(id); err != nil {
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "delete_watch").Msg("failed to stop worker")
	}

	if err := store.Delete(c.Request.Context(), h.db, id); err != nil {
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "delete_watch").Msg("failed to delete watch")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to delete watch", nil))
		return
	}

	logger.LogBusinessOperation(c, "watches", "delete", "watch", strconv.FormatInt(id, 10), true, nil)
	c.JSON(http.StatusOK, response.OK("watch deleted successfully", nil))
}

// RestartWatch handles POST /api/watches/:id/restart.
func (h *Handlers) RestartWatch(c *gin.Context) {
	id, ok := watchIDParam(c)
	if !ok {
		return
	}
	if err := h.sup.Restart(id); err != nil {
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "restart_watch").Msg("failed to restart worker")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to restart watch", nil))
		return
	}
	logger.LogBusinessOperation(c, "watches", "restart", "watch", strconv.FormatInt(id, 10), true, nil)
	c.JSON(http.StatusOK, response.OK("watch restarted successfully", nil))
}

// StopWatch handles POST /api/watches/:id/stop.
func (h *Handlers) StopWatch(c *gin.Context) {
	id, ok := watchIDParam(c)
	if !ok {
		return
	}
	if err := h.sup.Remove(id); err != nil {
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "stop_watch").Msg("failed to stop worker")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to stop watch", nil))
		return
	}
	logger.LogBusinessOperation(c, "watches", "stop", "watch", strconv.FormatInt(id, 10), true, nil)
	c.JSON(http.StatusOK, response.OK("watch stopped successfully", nil))
}

// CheckWatch handles POST /api/watches/:id/check.
func (h *Handlers) CheckWatch(c *gin.Context) {
	id, ok := watchIDParam(c)
	if !ok {
		return
	}
	if err := h.sup.CheckNow(id); err != nil {
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "check_watch").Msg("failed to trigger check")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to trigger check", nil))
		return
	}
	c.JSON(http.StatusOK, response.OK("check triggered successfully", nil))
}

// WatchStatus handles GET /api/watches/:id/status.
func (h *Handlers) WatchStatus(c *gin.Context) {
	id, ok := watchIDParam(c)
	if !ok {
		return
	}

	w, err := store.Load(c.Request.Context(), h.db, id)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, response.NotFound("watch not found", nil))
		return
	}
	if err != nil {
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "watch_status").Msg("failed to load watch")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to load watch", nil))
		return
	}

	c.JSON(http.StatusOK, response.OK("status retrieved successfully", h.buildReport(w)))
}

func (h *Handlers) buildReport(w *models.Watch) models.StatusReport {
	alive, building := h.sup.WorkerStatusDict(w.ID)
	return models.StatusReport{
		ID:       w.ID,
		Name:     w.Name,
		Status:   string(w.Status),
		Time:     w.FormattedTime(),
		Alive:    alive,
		Building: building,
	}
}

// Health handles GET /api/health, mirroring the register of the teacher's
// health handler: overall service health gates on the database connection
// plus every registered worker's liveness.
func (h *Handlers) Health(c *gin.Context) {
	dbErr := h.db.PingContext(c.Request.Context())

	workerIDs := h.sup.WorkerIDs()
	workers := make(gin.H, len(workerIDs))
	allAlive := true
	for _, id := range workerIDs {
		alive, building := h.sup.WorkerStatusDict(id)
		workers[strconv.FormatInt(id, 10)] = gin.H{"alive": alive, "building": building}
		if !alive {
			allAlive = false
		}
	}

	payload := gin.H{
		"service":  "watchsup",
		"database": database.GetStats(),
		"workers":  workers,
	}

	if dbErr != nil || !allAlive {
		c.JSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "service unhealthy", payload))
		return
	}
	c.JSON(http.StatusOK, response.OK("service healthy", payload))
}

// TestAlertWatch handles POST /api/watches/:id/test-alert: enqueues a
// one-off notification job through the best-effort retry queue instead of
// sending synchronously, so a console "send me a test alert" click never
// blocks on SMTP.
func (h *Handlers) TestAlertWatch(c *gin.Context) {
	id, ok := watchIDParam(c)
	if !ok {
		return
	}

	if h.notifyQueue == nil {
		c.JSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "notification queue unavailable", nil))
		return
	}

	w, err := store.Load(c.Request.Context(), h.db, id)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, response.NotFound("watch not found", nil))
		return
	}
	if err != nil {
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "test_alert").Msg("failed to load watch")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to load watch", nil))
		return
	}

	recipients := mailer.ParseRecipients(w.Emails)
	if len(recipients) == 0 {
		c.JSON(http.StatusBadRequest, response.BadRequest("watch has no configured recipients", nil))
		return
	}

	job := &models.NotificationJob{
		WatchID:    w.ID,
		Sender:     config.Config.MailFrom,
		Recipients: recipients,
		Subject:    fmt.Sprintf("[watchsup] test alert for %s", w.Name),
		Body:       fmt.Sprintf("This is a test alert triggered manually for watch %q.", w.Name),
	}

	if err := h.notifyQueue.Enqueue(c.Request.Context(), job); err != nil {
		logger.Error().Err(err).Int64("watch_id", id).Str("operation", "test_alert").Msg("failed to enqueue test alert")
		c.JSON(http.StatusInternalServerError, response.InternalServerError("failed to enqueue test alert", nil))
		return
	}

	logger.LogBusinessOperation(c, "watches", "test_alert", "watch", strconv.FormatInt(id, 10), true, nil)
	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, "test alert enqueued", gin.H{"job_id": job.ID}))
}
