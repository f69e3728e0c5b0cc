package httpapi

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesprinters/twillmanager/internal/supervisor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sup := supervisor.New("/bin/true", time.Hour)
	t.Cleanup(sup.Finish)

	return NewHandlers(db, sup, nil), mock
}

func TestListWatchesEmpty(t *testing.T) {
	h, mock := newTestHandlers(t)
	mock.ExpectQuery(`SELECT .* FROM watches ORDER BY name ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "interval", "script", "emails", "status", "time", "reminder_interval", "last_alert"}))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/watches", nil)

	h.ListWatches(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWatchLoadErrorIsInternalServerError(t *testing.T) {
	h, mock := newTestHandlers(t)
	mock.ExpectQuery(`SELECT .* FROM watches WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrConnDone)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/watches/42", nil)
	c.Params = gin.Params{{Key: "id", Value: "42"}}

	h.GetWatch(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetWatchInvalidID(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/watches/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	h.GetWatch(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateWatchValidationError(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/watches", nil)
	c.Request.Header.Set("Content-Type", "application/json")

	h.CreateWatch(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteAbsentWatchIsNotAnError(t *testing.T) {
	h, mock := newTestHandlers(t)
	mock.ExpectExec(`DELETE FROM watches WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodDelete, "/api/watches/7", nil)
	c.Params = gin.Params{{Key: "id", Value: "7"}}

	h.DeleteWatch(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthReportsUnhealthyWhenDBUnreachable(t *testing.T) {
	h, mock := newTestHandlers(t)
	mock.ExpectPing().WillReturnError(sql.ErrConnDone)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/health", nil)

	h.Health(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthReportsHealthy(t *testing.T) {
	h, mock := newTestHandlers(t)
	mock.ExpectPing()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/health", nil)

	h.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTestAlertWatchWithoutQueueReportsUnavailable(t *testing.T) {
	h, _ := newTestHandlers(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/watches/1/test-alert", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	h.TestAlertWatch(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
