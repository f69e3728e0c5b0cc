// Package worker implements the Worker process of SPEC_FULL.md §4.2:
// one OS process per watch, running a single-threaded command loop with
// timeout = interval, performing a check on timeout or on an explicit
// "execute" command, and exiting on "quit".
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"os/exec"
	"time"

	"github.com/codesprinters/twillmanager/internal/ipc"
	"github.com/codesprinters/twillmanager/internal/logger"
	"github.com/codesprinters/twillmanager/internal/mailer"
	"github.com/codesprinters/twillmanager/internal/models"
	"github.com/codesprinters/twillmanager/internal/store"
)

// ScriptRunner executes a watch's script and reports success plus
// captured output. The core treats it as an opaque, possibly
// long-blocking call; it never retries internally.
type ScriptRunner interface {
	Run(script string) (ok bool, output string)
}

// ShellScriptRunner is the default ScriptRunner: it runs the script as a
// shell command and captures combined stdout/stderr. The real browser
// automation interpreter is an external collaborator per SPEC_FULL.md §1;
// this is a concrete, minimally useful stand-in satisfying the same contract.
type ShellScriptRunner struct{}

func (ShellScriptRunner) Run(script string) (bool, string) {
	cmd := exec.Command("sh", "-c", script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return false, string(out) + "\n" + err.Error()
	}
	return true, string(out)
}

// SendFunc matches mailer.Mailer.Send, kept as a function type so the
// worker can be tested without a live Mailer.
type SendFunc func(sender string, recipients []string, subject, body string) error

// Worker runs the per-watch check loop inside the child process.
type Worker struct {
	watchID  int64
	db       *sql.DB
	runner   ScriptRunner
	send     SendFunc
	mailFrom string
	events   *ipc.EventWriter
	watch    *models.Watch
}

// New builds a Worker bound to one watch id.
func New(watchID int64, db *sql.DB, runner ScriptRunner, send SendFunc, mailFrom string, events *ipc.EventWriter) *Worker {
	return &Worker{watchID: watchID, db: db, runner: runner, send: send, mailFrom: mailFrom, events: events}
}

// Main is the process main function: load the watch, then run the
// command loop until Quit or the command stream closes. Returns nil if
// the watch does not exist (the process should exit cleanly, not with
// an error).
func (w *Worker) Main(ctx context.Context, cmds *ipc.CommandReader) error {
	watch, err := store.Load(ctx, w.db, w.watchID)
	if err == store.ErrNotFound {
		logger.Warn().Int64("watch_id", w.watchID).Msg("failed to start worker - no such watch")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load watch: %w", err)
	}
	w.watch = watch

	logger.Info().Int64("watch_id", w.watchID).Str("name", watch.Name).Msg("starting worker")

	return w.loop(ctx, cmds, time.Duration(watch.Interval)*time.Second)
}

func (w *Worker) loop(ctx context.Context, cmds *ipc.CommandReader, tickInterval time.Duration) error {
	cmdCh := make(chan ipc.Command)
	streamErr := make(chan error, 1)

	go func() {
		for {
			cmd, err := cmds.Recv()
			if err != nil {
				streamErr <- err
				return
			}
			cmdCh <- cmd
		}
	}()

	running := true
	for running {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-cmdCh:
			switch cmd.Kind {
			case ipc.CommandExecute:
				w.runCheck(ctx)
			case ipc.CommandQuit:
				running = false
			}
		case <-time.After(tickInterval):
			w.runCheck(ctx)
		case <-streamErr:
			// Command stream closed (parent gone or pipe torn down): exit the loop.
			running = false
		}
	}
	return nil
}

// runCheck performs one check and logs (without propagating) any error,
// per SPEC_FULL.md §7: store/transport errors terminate the current
// check but the loop continues to the next tick.
func (w *Worker) runCheck(ctx context.Context) {
	if err := w.execute(ctx); err != nil {
		logger.Error().Int64("watch_id", w.watchID).Err(err).Msg("check failed")
	}
}

// execute is the check procedure of SPEC_FULL.md §4.2, steps 1-8.
func (w *Worker) execute(ctx context.Context) error {
	w.sendEvent(ipc.EventStart)
	defer w.sendEvent(ipc.EventEnd)

	ok, output := w.runner.Run(w.watch.Script)

	newStatus := models.StatusFailed
	if ok {
		newStatus = models.StatusOK
	}
	now := time.Now().Unix()

	oldStatus := w.watch.Status
	w.watch.Status = newStatus
	w.watch.Time = &now

	if err := store.UpdateStatus(ctx, w.db, w.watchID, w.watch.Status, w.watch.Time, w.watch.LastAlert); err != nil {
		return fmt.Errorf("failed to persist status: %w", err)
	}

	if newStatus != models.StatusOK {
		logger.Warn().Int64("watch_id", w.watchID).Str("name", w.watch.Name).Str("status", string(newStatus)).Msg("check result")
	} else {
		logger.Info().Int64("watch_id", w.watchID).Str("name", w.watch.Name).Str("status", string(newStatus)).Msg("check result")
	}

	changed := oldStatus != newStatus
	reminderDue := w.isReminderDue(now)

	if changed || (reminderDue && newStatus == models.StatusFailed) {
		logger.Info().Int64("watch_id", w.watchID).Msg("sending notification")
		if err := w.notify(oldStatus, newStatus, output); err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}

		alertTime := time.Now().Unix()
		w.watch.LastAlert = &alertTime
		if err := store.UpdateStatus(ctx, w.db, w.watchID, w.watch.Status, w.watch.Time, w.watch.LastAlert); err != nil {
			return fmt.Errorf("failed to persist alert time: %w", err)
		}
	}

	return nil
}

func (w *Worker) isReminderDue(now int64) bool {
	if w.watch.ReminderInterval == nil {
		return false
	}
	if w.watch.LastAlert == nil {
		return true
	}
	return now-*w.watch.LastAlert > int64(*w.watch.ReminderInterval)
}

func (w *Worker) notify(oldStatus, newStatus models.Status, output string) error {
	recipients := mailer.ParseRecipients(w.watch.Emails)
	if len(recipients) == 0 {
		return nil
	}

	var subject string
	if oldStatus != newStatus {
		subject = fmt.Sprintf("Watch %s status change %s -> %s", w.watch.Name, oldStatus, newStatus)
	} else {
		subject = fmt.Sprintf("Watch %s status is still %s", w.watch.Name, newStatus)
	}

	body := fmt.Sprintf("Script:\n%s\n\nResult:\n%s", w.watch.Script, output)

	return w.send(w.mailFrom, recipients, subject, body)
}

func (w *Worker) sendEvent(kind ipc.EventKind) {
	if w.events == nil {
		return
	}
	if err := w.events.Send(ipc.Event{Kind: kind, WatchID: w.watchID}); err != nil {
		logger.Error().Int64("watch_id", w.watchID).Err(err).Msg("failed to send worker event")
	}
}
