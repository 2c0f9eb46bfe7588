package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/example/gymdesk-client/internal/api"
	"github.com/example/gymdesk-client/internal/application"
	"github.com/example/gymdesk-client/internal/apperror"
	"github.com/example/gymdesk-client/internal/config"
	"github.com/example/gymdesk-client/internal/credentials"
	"github.com/example/gymdesk-client/internal/logging"
	"github.com/example/gymdesk-client/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], environment{stdout: os.Stdout, stderr: os.Stderr, now: time.Now})
	if err == nil {
		return
	}
	if !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}

// environment carries the process boundaries so tests can replace them.
type environment struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

type command struct {
	name    string
	usage   string
	run     func(ctx context.Context, a *app, args []string) error
	session bool
}

var commands = []command{
	{name: "login", usage: "--email E --password P", run: runLogin},
	{name: "register", usage: "--email E --username U --password P", run: runRegister},
	{name: "logout", usage: "", run: runLogout},
	{name: "whoami", usage: "", run: runWhoami},
	{name: "resources", usage: "[--kind Room|Equipment]", run: runResources, session: true},
	{name: "create-resource", usage: "--name N --kind K [--max-bookings N] [--color #RRGGBB]", run: runCreateResource, session: true},
	{name: "slots", usage: "(--resource-id ID | --date YYYY-MM-DD) [--all]", run: runSlots, session: true},
	{name: "generate-slots", usage: "--resource-id ID --start YYYY-MM-DD --end YYYY-MM-DD [--duration MIN]", run: runGenerateSlots, session: true},
	{name: "reservations", usage: "[--status Active|Cancelled]", run: runReservations, session: true},
	{name: "book", usage: "--resource-id ID --date YYYY-MM-DD [--slot-id ID] [--notes TEXT]", run: runBook, session: true},
	{name: "cancel", usage: "--id ID", run: runCancel, session: true},
	{name: "export", usage: "[--from YYYY-MM-DD] [--to YYYY-MM-DD] [--output FILE] [--name NAME]", run: runExport, session: true},
}

func lookupCommand(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func run(ctx context.Context, args []string, env environment) error {
	global := pflag.NewFlagSet("gymdesk", pflag.ContinueOnError)
	global.SetOutput(env.stderr)
	global.SetInterspersed(false)
	envFile := global.String("env-file", ".env", "optional dotenv file applied before the environment")
	global.Usage = func() { printUsage(env.stderr, global) }
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(env.stderr, global)
		return errUsage
	}
	cmd, ok := lookupCommand(rest[0])
	if !ok {
		printUsage(env.stderr, global)
		return fmt.Errorf("%w: unknown command %q", errUsage, rest[0])
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	a, err := newApp(ctx, cfg, env)
	if err != nil {
		return err
	}
	defer a.close()

	if cmd.session {
		if err := a.session.RequireAuthenticated(); err != nil {
			return fmt.Errorf("%w: run \"gymdesk login\" first", err)
		}
	}

	ctx = logging.ContextWithLogger(ctx, a.logger.With("command", cmd.name))
	return cmd.run(ctx, a, rest[1:])
}

// app is the composition root shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer
	now     func() time.Time
	store   credentials.Store
	client  *api.Client
	views   *application.ViewCache
	session *application.SessionController
	catalog *application.Catalog
	booking *application.BookingWorkflow
	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, env environment) (*app, error) {
	now := env.now
	if now == nil {
		now = time.Now
	}
	logger := logging.New(env.stderr, cfg.LogLevel)

	a := &app{cfg: cfg, logger: logger, stdout: env.stdout, stderr: env.stderr, now: now}

	if cfg.UsesMemoryStore() {
		a.store = credentials.NewMemoryStore(credentials.Credentials{})
	} else {
		store, err := credentials.OpenSQLite(ctx, cfg.CredentialsDSN, credentials.SQLiteOptions{
			Passphrase: cfg.CredentialsPassphrase,
			Logger:     logger,
			Now:        now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	exec, err := transport.New(transport.Options{
		BaseURL:    cfg.APIBaseURL,
		HTTPClient: newHTTPClient(cfg.HTTPTimeout),
		Store:      a.store,
		Limiter:    limiter,
		Logger:     logger,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to build request executor: %w", err)
	}

	a.client = api.NewClient(exec, a.store, logger)
	a.views = application.NewViewCache(cfg.CacheSize, cfg.CacheTTL, now)
	a.session = application.NewSessionController(a.client, a.store, a.views, logger)
	notifier := application.NewLogNotifier(logger)
	a.catalog = application.NewCatalog(application.CatalogDeps{
		API:      a.client,
		Views:    a.views,
		Notifier: notifier,
		Session:  a.session,
		Logger:   logger,
	})
	a.booking = application.NewBookingWorkflow(application.BookingDeps{
		Slots:    a.catalog,
		Creator:  a.client,
		Views:    a.views,
		Notifier: notifier,
		Session:  a.session,
		Now:      now,
		Logger:   logger,
	})
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}

var errUsage = errors.New("invalid usage")

func printUsage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: gymdesk [--env-file FILE] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	usages := make(map[string]string, len(commands))
	for _, cmd := range commands {
		names = append(names, cmd.name)
		usages[cmd.name] = cmd.usage
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, usages[name])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "global flags:")
	fmt.Fprint(w, global.FlagUsages())
}

// exitCode maps failures onto distinct process exit statuses.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage), errors.Is(err, pflag.ErrHelp):
		return 2
	case errors.Is(err, application.ErrNotAuthenticated),
		errors.Is(err, apperror.ErrAuth),
		errors.Is(err, apperror.ErrTokenExpired):
		return 3
	case errors.Is(err, apperror.ErrConflict):
		return 4
	default:
		return 1
	}
}

func (a *app) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.SortFlags = false
	return fs
}

func newHTTPClient(timeout time.Duration) *http.Client {
	rt := http.DefaultTransport.(*http.Transport).Clone()
	rt.MaxIdleConnsPerHost = 4
	return &http.Client{Timeout: timeout, Transport: rt}
}

func parseDate(flag, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	date, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s must be YYYY-MM-DD", errUsage, flag)
	}
	return date, nil
}
