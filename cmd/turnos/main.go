package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"turnos/internal/api"
	"turnos/internal/calendar"
	"turnos/internal/config"
	"turnos/internal/ics"
	appLog "turnos/internal/log"
	"turnos/internal/model"
	"turnos/internal/sheet"
	"turnos/internal/snapshot"
	"turnos/internal/store"
	"turnos/internal/web"
)

const version = "0.3.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	export     string
	debug      bool
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		os.Exit(hashPassword(os.Args[2:]))
	}
	os.Exit(run(parseFlags()))
}

func run(flags flagConfig) int {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		if conf == nil {
			appLog.Error("failed to load config", err, "config_path", flags.configPath)
			return 1
		}
		appLog.Warn("could not write default config; continuing with defaults", "err", err, "config_path", flags.configPath)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		return 1
	}

	appLog.SetFormat(conf.Log.Format)
	appLog.SetLevel(appLog.ParseLevel(conf.Log.Level))
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("turnos starting", "version", version)

	loc := conf.Location()
	anchor, err := calendar.ParseMonth(conf.Calendar.AnchorMonth)
	if err != nil {
		appLog.Error("invalid anchor month", err, "anchor_month", conf.Calendar.AnchorMonth)
		return 1
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"api", conf.API.BaseURL,
		"timezone", loc.String(),
		"refresh", conf.RefreshCron,
		"anchor_month", anchor.String(),
		"total_pages", conf.Calendar.TotalPages,
		"mirror", conf.Mirror.Path,
		"token_set", conf.API.Token != "",
		"once", flags.once,
		"export", flags.export,
	)

	client, err := api.NewClient(conf.API.BaseURL, api.StaticToken(conf.API.Token), api.WithTimeout(conf.API.Timeout))
	if err != nil {
		appLog.Error("failed to build API client", err)
		return 1
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New(client, store.Options{Location: loc})
	defer st.Close()
	ctrl := calendar.NewController(calendar.NewPager(anchor, conf.Calendar.TotalPages), nil, loc)
	ctrl.Subscribe(func(sel calendar.Selection) {
		appLog.Debug("selection changed",
			"selected", sel.SelectedDate.String(),
			"page", sel.Page,
			"month", sel.VisibleMonth.String(),
		)
	})

	if conf.Mirror.Path != "" {
		mirror, err := snapshot.Open(ctx, conf.Mirror.Path)
		if err != nil {
			appLog.Error("snapshot mirror unavailable", err, "path", conf.Mirror.Path)
		} else {
			defer mirror.Close()
			followCtx, cancelFollow := context.WithCancel(ctx)
			wait := mirror.Follow(followCtx, st, nil)
			defer wait()
			defer cancelFollow()
		}
	}

	fetchErr := st.FetchAll(ctx)

	if flags.export != "" {
		if fetchErr != nil {
			return 1
		}
		if err := exportTo(flags.export, st, conf.ICS.ProductID); err != nil {
			appLog.Error("export failed", err, "path", flags.export)
			return 1
		}
		appLog.Info("export written", "path", flags.export, "count", len(st.Items()))
		return 0
	}

	if flags.once {
		printSummary(os.Stdout, st, ctrl)
		if fetchErr != nil {
			return 1
		}
		return 0
	}

	scheduler := cron.New(cron.WithLocation(loc))
	if conf.RefreshEnabled() {
		if _, err := scheduler.AddFunc(conf.RefreshCron, func() {
			// Failures are recorded on the store and logged there.
			_ = st.Refresh(ctx)
		}); err != nil {
			appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
			return 1
		}
		scheduler.Start()
		defer func() {
			<-scheduler.Stop().Done()
		}()
	}

	srv := web.NewServer(conf, st, ctrl, nil)
	server := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		appLog.Info("signal received, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("failed to shutdown server", err)
		}
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("server encountered error", err)
		return 1
	}
	appLog.Info("turnos exiting")
	return 0
}

// exportTo writes the store's list to path, or stdout for "-". The format
// follows the extension: .xlsx for a workbook, anything else for iCalendar.
func exportTo(path string, st *store.Store, productID string) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return sheet.Write(w, st.Items())
	}
	_, err := io.WriteString(w, ics.Export(st.Items(), productID, time.Now()))
	return err
}

func printSummary(w io.Writer, st *store.Store, ctrl *calendar.Controller) {
	snap := st.Snapshot()
	today := st.Today()
	fmt.Fprintf(w, "turnos: %d total, %d hoy (%s), %d pendientes\n",
		len(snap.Items), st.TodayCount(), today, st.PendingCount())
	if snap.LastError != "" {
		fmt.Fprintf(w, "error: %s\n", snap.LastError)
	}
	for _, a := range st.ForDate(ctrl.SelectedDate()) {
		fmt.Fprintf(w, "  %s  %s  %s\n", a.FormattedTime(), a.DisplayLabel(), model.HexColor(a.DisplayColor()))
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/turnos/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch once, print today's summary and exit")
	flag.StringVar(&cfg.export, "export", "", "Fetch once and write appointments to this path (.ics or .xlsx, - for stdout)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
