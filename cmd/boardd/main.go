// Command boardd runs the board engine: it restores the board and library
// from the configured storage backend, registers the board commands and
// serves them over HTTP until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/tactiboard/engine/internal/api"
	"github.com/tactiboard/engine/internal/board"
	"github.com/tactiboard/engine/internal/config"
	"github.com/tactiboard/engine/internal/dispatcher"
	"github.com/tactiboard/engine/internal/handlers"
	"github.com/tactiboard/engine/internal/influx"
	"github.com/tactiboard/engine/internal/logging"
	intOtel "github.com/tactiboard/engine/internal/otel"
	"github.com/tactiboard/engine/internal/playback"
	"github.com/tactiboard/engine/internal/recorder"
	"github.com/tactiboard/engine/internal/render"
	"github.com/tactiboard/engine/internal/session"
	"github.com/tactiboard/engine/internal/storage"
	"github.com/tactiboard/engine/pkg/core"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const AppName = "boardd"

var (
	SessionStartTime = time.Now()

	LogFilePath string
	LogFile     *os.File

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager
	Logger      *slog.Logger
	// DBLogger is handed to the database and influx managers
	DBLogger zerolog.Logger

	OTelProvider *intOtel.Provider

	sess *session.Context
)

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.ConfigFileName)
	flag.Parse()

	initLogging(*configDir)
	defer shutdownLogging()

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd = strings.ToLower(args[0])
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "migratebackups":
		dir := ""
		if len(args) > 1 {
			dir = args[1]
		}
		err = migrateBackups(dir)
	case "upload":
		err = uploadLibrary()
	default:
		err = fmt.Errorf("unknown command %q (want serve, migratebackups or upload)", cmd)
	}
	if err != nil {
		Logger.Error("boardd failed", "command", cmd, "error", err)
		fmt.Fprintln(os.Stderr, err)
		shutdownLogging()
		os.Exit(1)
	}
}

func initLogging(configDir string) {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, viper.GetString("logLevel"), nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	var out io.Writer = os.Stdout
	if logsDir := viper.GetString("logsDir"); logsDir != "" {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
		} else {
			LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
			// keep the previous run's file when the name collides
			if _, err := os.Stat(LogFilePath); err == nil {
				_ = os.Rename(LogFilePath, LogFilePath+".old")
			}
			f, err := os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
			} else {
				LogFile = f
				out = f
			}
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var err error
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			StorageType:  viper.GetString("storage.type"),
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    out,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	SlogManager.SetContextProvider(logging.PlaybackAttrs(func() core.PlaybackState {
		if sess == nil {
			return core.PlaybackState{}
		}
		return sess.Playback.State()
	}))
	var file io.Writer
	if LogFile != nil {
		file = LogFile
	}
	SlogManager.Setup(file, viper.GetString("logLevel"), otelLogProvider)
	Logger = SlogManager.Logger()
	// components built without an explicit logger fall back to slog.Default
	slog.SetDefault(Logger)

	DBLogger = zerolog.New(out).With().Timestamp().Str("app", AppName).Logger()
	if lvl, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("logLevel"))); err == nil {
		DBLogger = DBLogger.Level(lvl)
	}
}

func shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "shutting down otel: %v\n", err)
		}
		OTelProvider = nil
	}
	if LogFile != nil {
		_ = LogFile.Close()
		LogFile = nil
	}
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Validate(); err != nil {
		return err
	}
	boardCfg := config.GetBoardConfig()
	playbackCfg := config.GetPlaybackConfig()
	apiCfg := config.GetAPIConfig()

	reporter := initInflux(ctx)
	defer func() {
		if reporter != nil {
			if err := reporter.Close(); err != nil {
				Logger.Warn("Failed to close influx reporter", "error", err)
			}
		}
	}()

	var onFinish func(playback.Report)
	if reporter != nil {
		onFinish = reporter.ReportPlayback
	}

	pbCfg := playback.Config{OnFinish: onFinish}
	if OTelProvider != nil {
		pbCfg.Meter = OTelProvider.Meter("github.com/tactiboard/engine/internal/playback")
	}

	var err error
	sess, err = session.NewContext(DefaultBoard(boardCfg), session.Config{
		Board: board.Config{HistoryCapacity: boardCfg.HistoryCapacity},
		Recorder: recorder.Config{
			PhaseDuration:   boardCfg.PhaseDuration,
			PhaseGap:        &boardCfg.PhaseGap,
			MinDisplacement: &boardCfg.MinDisplacement,
		},
		Playback: pbCfg,
		Logger:   Logger,
	})
	if err != nil {
		return err
	}
	if playbackCfg.DefaultSpeed > 0 {
		sess.Playback.SetSpeed(playbackCfg.DefaultSpeed)
	}

	backend, err := initStorage(config.GetStorageConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}()

	if err := restore(backend); err != nil {
		Logger.Warn("Failed to restore board, starting from the default lineup", "error", err)
	}

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(DBLogger))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	svcCtx, cancelLoops := context.WithCancel(ctx)
	svc := handlers.NewService(svcCtx, handlers.Dependencies{
		Session:       sess,
		Backend:       backend,
		Logger:        Logger.With("component", "handlers"),
		FrameInterval: playbackCfg.FrameInterval,
		Overlay:       render.OverlayFunc(render.Options{Width: render.DefaultWidth}),
	})
	svc.RegisterHandlers(eventDispatcher)
	Logger.Info("Board handlers registered", "commands", len(eventDispatcher.Commands()))

	srv := &http.Server{
		Addr:              apiCfg.Listen,
		Handler:           api.NewServer(svc, eventDispatcher, Logger.With("component", "api")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		Logger.Info("Listening", "addr", apiCfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		Logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			cancelLoops()
			svc.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		Logger.Warn("HTTP shutdown incomplete", "error", err)
	}

	sess.Playback.Stop()
	cancelLoops()
	svc.Wait()

	res, err := svc.SaveLibrary()
	if err != nil {
		return fmt.Errorf("saving library on shutdown: %w", err)
	}
	Logger.Info("Library saved", "sequences", res.Sequences, "path", res.Path)
	if OTelProvider != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := OTelProvider.Flush(flushCtx); err != nil {
			Logger.Warn("Failed to flush OTel logs", "error", err)
		}
	}
	return nil
}

// restore loads the persisted board and library into the session. An empty
// backend leaves the default lineup in place.
func restore(backend storage.Backend) error {
	snap, ok, err := backend.LoadBoard()
	if err != nil {
		return fmt.Errorf("loading board: %w", err)
	}
	seqs, err := backend.LoadSequences()
	if err != nil {
		return fmt.Errorf("loading sequences: %w", err)
	}
	if !ok {
		if len(seqs) == 0 {
			return nil
		}
		snap = sess.Board.Snapshot()
	}
	return sess.Restore(snap, seqs)
}

func initInflux(ctx context.Context) *influx.Manager {
	influxCfg := config.GetInfluxConfig()
	if !influxCfg.Enabled {
		return nil
	}
	backupPath := logging.SessionFilePath(viper.GetString("logsDir"), AppName+"_influx", SessionStartTime, ".lp.gz")
	m := influx.NewManager(DBLogger.With().Str("component", "influx").Logger(), influxCfg, backupPath)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.Connect(connectCtx); err != nil {
		Logger.Warn("Playback reporting disabled", "error", err)
		return nil
	}
	return m
}
