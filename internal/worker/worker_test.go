package worker

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesprinters/twillmanager/internal/ipc"
	"github.com/codesprinters/twillmanager/internal/models"
)

type fakeRunner struct {
	ok     bool
	output string
}

func (f fakeRunner) Run(script string) (bool, string) { return f.ok, f.output }

func newWorkerForTest(t *testing.T, runner ScriptRunner, send SendFunc, watch *models.Watch) (*Worker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	events := ipc.NewEventWriter(&bytes.Buffer{})
	w := New(watch.ID, db, runner, send, "watchsup@localhost", events)
	w.watch = watch
	return w, mock
}

func TestExecuteUnknownToFailedSendsTransitionMail(t *testing.T) {
	var gotSubject string
	send := func(sender string, recipients []string, subject, body string) error {
		gotSubject = subject
		return nil
	}

	watch := &models.Watch{ID: 1, Name: "cs", Script: "fail", Emails: "a@x.com", Status: models.StatusUnknown}
	w, mock := newWorkerForTest(t, fakeRunner{ok: false, output: "boom"}, send, watch)

	mock.ExpectExec(`UPDATE watches SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE watches SET status`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := w.execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, watch.Status)
	assert.Equal(t, "Watch cs status change UNKNOWN -> FAILED", gotSubject)
	assert.NotNil(t, watch.LastAlert)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteStaysOKNoSend(t *testing.T) {
	sendCalled := false
	send := func(sender string, recipients []string, subject, body string) error {
		sendCalled = true
		return nil
	}

	watch := &models.Watch{ID: 1, Name: "cs", Script: "ok", Emails: "a@x.com", Status: models.StatusOK}
	w, mock := newWorkerForTest(t, fakeRunner{ok: true}, send, watch)

	mock.ExpectExec(`UPDATE watches SET status`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := w.execute(context.Background())
	require.NoError(t, err)

	assert.False(t, sendCalled)
	assert.Nil(t, watch.LastAlert)
}

func TestExecuteNoRecipientsNeverSends(t *testing.T) {
	sendCalled := false
	send := func(sender string, recipients []string, subject, body string) error {
		sendCalled = true
		return nil
	}

	watch := &models.Watch{ID: 1, Name: "cs", Script: "fail", Emails: "", Status: models.StatusOK}
	w, mock := newWorkerForTest(t, fakeRunner{ok: false}, send, watch)

	mock.ExpectExec(`UPDATE watches SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE watches SET status`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := w.execute(context.Background())
	require.NoError(t, err)
	assert.False(t, sendCalled)
}

func TestExecuteReminderWhileStillFailing(t *testing.T) {
	sendCount := 0
	send := func(sender string, recipients []string, subject, body string) error {
		sendCount++
		return nil
	}

	longAgo := time.Now().Add(-1 * time.Hour).Unix()
	reminderInterval := 1
	watch := &models.Watch{
		ID: 1, Name: "cs", Script: "fail", Emails: "a@x.com",
		Status: models.StatusFailed, LastAlert: &longAgo, ReminderInterval: &reminderInterval,
	}
	w, mock := newWorkerForTest(t, fakeRunner{ok: false}, send, watch)

	mock.ExpectExec(`UPDATE watches SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE watches SET status`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := w.execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sendCount)
}

func TestExecuteStaysFailedNoReminderDue(t *testing.T) {
	sendCount := 0
	send := func(sender string, recipients []string, subject, body string) error {
		sendCount++
		return nil
	}

	justNow := time.Now().Unix()
	reminderInterval := 3600
	watch := &models.Watch{
		ID: 1, Name: "cs", Script: "fail", Emails: "a@x.com",
		Status: models.StatusFailed, LastAlert: &justNow, ReminderInterval: &reminderInterval,
	}
	w, mock := newWorkerForTest(t, fakeRunner{ok: false}, send, watch)

	mock.ExpectExec(`UPDATE watches SET status`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := w.execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sendCount)
}

func TestExecuteMailerFailureSkipsSecondWrite(t *testing.T) {
	send := func(sender string, recipients []string, subject, body string) error {
		return assert.AnError
	}

	watch := &models.Watch{ID: 1, Name: "cs", Script: "fail", Emails: "a@x.com", Status: models.StatusOK}
	w, mock := newWorkerForTest(t, fakeRunner{ok: false}, send, watch)

	mock.ExpectExec(`UPDATE watches SET status`).WillReturnResult(sqlmock.NewResult(0, 1))

	err := w.execute(context.Background())
	assert.Error(t, err)
	assert.Nil(t, watch.LastAlert)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsReminderDueNilIntervalAlwaysFalse(t *testing.T) {
	w := &Worker{watch: &models.Watch{}}
	assert.False(t, w.isReminderDue(1000))
}

func TestIsReminderDueNeverAlertedTrue(t *testing.T) {
	interval := 60
	w := &Worker{watch: &models.Watch{ReminderInterval: &interval}}
	assert.True(t, w.isReminderDue(1000))
}
