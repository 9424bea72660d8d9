package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"pkt.systems/psi"
	"pkt.systems/pslog"

	"github.com/lotas/laterread/internal/applog"
	"github.com/lotas/laterread/internal/config"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	defer applog.Close()

	root := newRootCmd()
	root.SetArgs(os.Args[1:])
	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("laterread command failed")
		return 1
	}
	return 0
}

// flags are the global overrides shared by every command.
type flags struct {
	configPath string
	addr       string
	dbPath     string
	host       string
	profile    string
}

// load resolves the configuration and applies command-line overrides.
func (f *flags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	pf := cmd.Flags()
	if pf.Changed("addr") {
		cfg.Addr = f.addr
	}
	if pf.Changed("db") {
		cfg.DBPath = f.dbPath
	}
	if pf.Changed("host") {
		cfg.Host = f.host
	}
	if pf.Changed("profile") {
		cfg.FirefoxProfile = f.profile
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if err := applog.Init(cfg.LogDir); err != nil {
		pslog.Ctx(cmd.Context()).Warn("file logging disabled", "dir", cfg.LogDir, "err", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "laterread",
		Short:         "Save pages to read later and come back to where you left off",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			return runPopup(cmd.Context(), cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "config file (default ~/.config/laterread/config.yaml)")
	pf.StringVar(&f.addr, "addr", "", "coordinator listen address")
	pf.StringVar(&f.dbPath, "db", "", "database file")
	pf.StringVar(&f.host, "host", "", "page host: extension, chrome or firefox")
	pf.StringVar(&f.profile, "profile", "", "Firefox profile name for the firefox host")

	root.AddCommand(newServeCmd(f))
	root.AddCommand(newPageCmd(f))
	root.AddCommand(newListCmd(f))
	root.AddCommand(newSaveCmd(f))
	root.AddCommand(newRemoveCmd(f))
	root.AddCommand(newClearCmd(f))
	root.AddCommand(newOpenCmd(f))
	root.AddCommand(newExportCmd(f))
	root.AddCommand(newCheckCmd(f))
	root.AddCommand(newProfilesCmd())
	root.AddCommand(newConfigCmd(f))
	return root
}
