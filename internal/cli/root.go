package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"taskdesk/taskctl/internal/api"
	"taskdesk/taskctl/internal/app"
	"taskdesk/taskctl/internal/config"
	"taskdesk/taskctl/internal/observability"
)

var errNotLoggedIn = errors.New("not logged in; run `taskctl login` first")

// Options carries the process streams so commands can be driven from tests.
type Options struct {
	Version string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

type globalFlags struct {
	configFile string
	apiURL     string
	logLevel   string
}

// runtime holds per-invocation state shared by the commands: the resolved
// configuration and, once a command needs it, the wired client.
type runtime struct {
	opts   Options
	flags  globalFlags
	cfg    config.Config
	log    *slog.Logger
	client *app.Client
}

// Execute runs taskctl with args and returns the process exit code.
func Execute(opts Options, args []string) int {
	root, rt := newRootCommand(opts)
	root.SetArgs(args)
	err := root.Execute()
	if cerr := rt.close(); cerr != nil {
		rt.log.Warn("close client", "error", cerr)
	}
	if err != nil {
		fmt.Fprintln(rt.opts.Stderr, "Error:", err)
		if errors.Is(err, api.ErrUnauthorized) {
			fmt.Fprintln(rt.opts.Stderr, "The backend rejected the session; run `taskctl login` again.")
		}
		return 1
	}
	return 0
}

func newRootCommand(opts Options) (*cobra.Command, *runtime) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	rt := &runtime{opts: opts, log: slog.New(slog.DiscardHandler)}

	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Manage your tasks from the terminal",
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.loadConfig(cmd.Flags())
		},
	}
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	bindGlobalFlags(root.PersistentFlags(), &rt.flags)

	root.AddCommand(
		newLoginCommand(rt),
		newSignupCommand(rt),
		newLogoutCommand(rt),
		newWhoamiCommand(rt),
		newTasksCommand(rt),
		newHistoryCommand(rt),
		newDevServerCommand(rt),
		newDBWaitCommand(rt),
		newVersionCommand(rt),
	)
	return root, rt
}

func bindGlobalFlags(fs *pflag.FlagSet, f *globalFlags) {
	fs.StringVar(&f.configFile, "config", "", "YAML config file (overrides TASKCTL_CONFIG)")
	fs.StringVar(&f.apiURL, "api-url", "", "backend base URL (overrides TASKS_API_BASE_URL)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}

func (r *runtime) loadConfig(fs *pflag.FlagSet) error {
	path := r.flags.configFile
	if path == "" {
		path = os.Getenv("TASKCTL_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if fs.Changed("api-url") {
		cfg.API.BaseURL = r.flags.apiURL
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = r.flags.logLevel
	}
	r.cfg = cfg

	if f, ok := r.opts.Stderr.(*os.File); ok && f == os.Stderr {
		r.log = observability.NewLogger(cfg.LogLevel)
	} else {
		r.log = observability.NewLoggerTo(r.opts.Stderr, cfg.LogLevel, false)
	}
	return nil
}

// open wires the client on first use.
func (r *runtime) open() (*app.Client, error) {
	if r.client != nil {
		return r.client, nil
	}
	c, err := app.NewClient(r.cfg, r.log)
	if err != nil {
		return nil, err
	}
	r.client = c
	return c, nil
}

// authenticated opens the client and refuses to continue without a valid
// session.
func (r *runtime) authenticated() (*app.Client, error) {
	c, err := r.open()
	if err != nil {
		return nil, err
	}
	if !c.Session().IsAuthenticated() {
		return nil, errNotLoggedIn
	}
	return c, nil
}

func (r *runtime) close() error {
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *runtime) printf(format string, args ...any) {
	fmt.Fprintf(r.opts.Stdout, format, args...)
}

func newVersionCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskctl version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			rt.printf("taskctl %s\n", rt.opts.Version)
			return nil
		},
	}
}
