// Command twillmanager is the dual-mode entrypoint of SPEC_FULL.md:
// run without flags it is the supervisor process (HTTP control plane +
// WorkerSet manager loop); run with -worker-mode it re-execs as a single
// Worker process bound to one watch id, per §9's process-spawn design.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codesprinters/twillmanager/internal/config"
	"github.com/codesprinters/twillmanager/internal/database"
	"github.com/codesprinters/twillmanager/internal/httpapi"
	"github.com/codesprinters/twillmanager/internal/ipc"
	"github.com/codesprinters/twillmanager/internal/logger"
	"github.com/codesprinters/twillmanager/internal/mailer"
	"github.com/codesprinters/twillmanager/internal/notifyqueue"
	"github.com/codesprinters/twillmanager/internal/store"
	"github.com/codesprinters/twillmanager/internal/supervisor"
	"github.com/codesprinters/twillmanager/internal/worker"
)

func main() {
	workerMode := flag.Bool("worker-mode", false, "run as a single worker process bound to -watch-id")
	watchID := flag.Int64("watch-id", 0, "watch id to run (worker mode only)")
	flag.Parse()

	_ = godotenv.Load()

	component := "supervisor"
	if *workerMode {
		component = "worker"
	}
	if err := logger.InitFromEnv(component); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize logger")
	}

	config.Init()

	if *workerMode {
		runWorker(*watchID)
		return
	}
	runSupervisor()
}

// runWorker is the child process main function, wired over its inherited
// stdin (command stream) / stdout (event stream) pipes.
func runWorker(watchID int64) {
	if err := database.Init(); err != nil {
		logger.Fatal().Err(err).Msg("worker failed to connect to database")
	}
	defer func() { _ = database.Close() }()

	conn := ipc.NewPipePair(os.Stdin, os.Stdout)
	cmdStream, eventStream, closeSession, err := ipc.ChildSession(conn)
	if err != nil {
		logger.Fatal().Err(err).Int64("watch_id", watchID).Msg("worker failed to establish IPC session")
	}
	defer func() { _ = closeSession() }()

	w := worker.New(
		watchID,
		database.DB(),
		worker.ShellScriptRunner{},
		mailer.NewSMTPMailer().Send,
		config.Config.MailFrom,
		ipc.NewEventWriter(eventStream),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Main(ctx, ipc.NewCommandReader(cmdStream)); err != nil {
		logger.Fatal().Err(err).Int64("watch_id", watchID).Msg("worker exited with error")
	}
}

// runSupervisor is the parent process main function: HTTP control plane
// plus the WorkerSet manager loop, in the register of collect/main.go.
func runSupervisor() {
	if err := database.Init(); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}

	ctx := context.Background()
	if err := store.CreateTables(ctx, database.DB()); err != nil {
		logger.Fatal().Err(err).Msg("failed to create watches table")
	}

	queueAvailable := true
	if err := notifyqueue.Init(); err != nil {
		logger.Warn().Err(err).Msg("notification retry queue unavailable, continuing without it")
		queueAvailable = false
	}

	sup := supervisor.New(config.Config.WorkerBinaryPath, config.Config.ManagerPollTimeout)

	watches, err := store.LoadAll(ctx, database.DB())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load watches at startup")
	}
	for _, w := range watches {
		if err := sup.Add(w.ID); err != nil {
			logger.Error().Err(err).Int64("watch_id", w.ID).Msg("failed to start worker at startup")
		}
	}
	logger.Info().Int("count", len(watches)).Msg("workers started")

	queueCtx, cancelQueue := context.WithCancel(context.Background())
	defer cancelQueue()
	var notifyQueue *notifyqueue.Queue
	if queueAvailable {
		notifyQueue = notifyqueue.NewQueue()
		go notifyQueue.Run(queueCtx, mailer.NewSMTPMailer().Send)
	}

	router := httpapi.NewRouter(database.DB(), sup, notifyQueue)
	srv := &http.Server{
		Addr:    config.Config.ListenAddress,
		Handler: router,
	}

	go func() {
		logger.LogServiceStart("twillmanager", "1.0.0", config.Config.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.LogServiceStop("twillmanager", sig.String())

	for _, w := range watches {
		if err := sup.Remove(w.ID); err != nil {
			logger.Error().Err(err).Int64("watch_id", w.ID).Msg("failed to stop worker during shutdown")
		}
	}
	sup.Finish()

	cancelQueue()
	if err := notifyqueue.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close notification queue")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	if err := database.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close database")
	}

	logger.Info().Msg("shutdown complete")
}
