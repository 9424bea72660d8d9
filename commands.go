package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/lotas/laterread/internal/analyzer"
	"github.com/lotas/laterread/internal/applog"
	"github.com/lotas/laterread/internal/config"
	"github.com/lotas/laterread/internal/coordinator"
	"github.com/lotas/laterread/internal/export"
	"github.com/lotas/laterread/internal/firefox"
	"github.com/lotas/laterread/internal/pagectx"
	"github.com/lotas/laterread/internal/pagemeta"
	"github.com/lotas/laterread/internal/protocol"
	"github.com/lotas/laterread/internal/reltime"
	"github.com/lotas/laterread/internal/tui"
	"github.com/lotas/laterread/internal/types"
	"github.com/lotas/laterread/internal/widget"
)

func newServeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator without the popup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func newPageCmd(f *flags) *cobra.Command {
	var pageURL string
	var tabID int
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Show a page with the floating read-later widget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)

			meta, err := pagemeta.New().Lookup(ctx, pageURL)
			if err != nil {
				logger.Warn("page content unavailable", "url", pageURL, "err", err)
				meta = pagemeta.Meta{Title: pageURL}
			}
			state := tui.NewPageState(pageURL, meta)

			if tabID == 0 {
				tabID = os.Getpid()
			}
			base := "http://" + cfg.Addr
			hello := protocol.Message{Role: protocol.RolePage, TabID: tabID, URL: pageURL}
			client, err := pagectx.Dial(ctx, base, hello, pagectx.WithCommandHandler(state.HandleCommand))
			if err != nil {
				// Without the socket the widget still reads and edits the
				// list over REST; it just is not told about changes.
				logger.Warn("coordinator socket unavailable, using REST", "addr", cfg.Addr, "err", err)
				client = pagectx.New(base)
			}
			defer client.Close()

			model := tui.NewPage(client, state, widget.WithThreshold(cfg.DragThreshold))
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseAllMotion(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "page URL")
	cmd.Flags().IntVar(&tabID, "tab", 0, "tab id to announce (default: process id)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newListCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved pages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			list := types.NewestFirst(st.items.List(cmd.Context()))
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No saved pages.")
				return nil
			}
			now := time.Now()
			for _, it := range list {
				fmt.Fprintf(out, "%s  %s\n", it.ID, it.DisplayTitle())
				fmt.Fprintf(out, "    %s · saved %s", it.URL, reltime.Since(now, it.SavedAt()))
				if it.ScrollPosition > 0 {
					fmt.Fprintf(out, " · at %d", it.ScrollPosition)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newSaveCmd(f *flags) *cobra.Command {
	var title string
	var scroll int
	cmd := &cobra.Command{
		Use:   "save URL",
		Short: "Save a page by URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cand := types.Candidate{URL: args[0], Title: title, ScrollPosition: scroll, Favicon: types.DefaultFavicon}
			if meta, err := pagemeta.New().Lookup(ctx, cand.URL); err != nil {
				pslog.Ctx(ctx).Warn("page metadata unavailable", "url", cand.URL, "err", err)
			} else {
				if cand.Title == "" {
					cand.Title = meta.Title
				}
				cand.Favicon = meta.Favicon
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			item, err := st.items.Save(ctx, cand)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s  %s\n", item.ID, item.DisplayTitle())
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title (default: looked up from the page)")
	cmd.Flags().IntVar(&scroll, "scroll", 0, "scroll position to restore")
	return cmd
}

func findItem(list []types.SavedItem, id string) (types.SavedItem, error) {
	for _, it := range list {
		if it.ID == id {
			return it, nil
		}
	}
	return types.SavedItem{}, fmt.Errorf("no saved page with id %s", id)
}

func newRemoveCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a saved page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			item, err := findItem(st.items.List(ctx), args[0])
			if err != nil {
				return err
			}
			if err := st.items.Remove(ctx, item.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", item.DisplayTitle())
			return nil
		},
	}
}

func newClearCmd(f *flags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every saved page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			n := len(st.items.List(ctx))
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to clear.")
				return nil
			}
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Remove all %d saved pages? [y/N] ", n)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}
			if err := st.items.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d pages.\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newOpenCmd(f *flags) *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "open ID",
		Short: "Open a saved page where you left off and remove it from the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			item, err := findItem(st.items.List(ctx), args[0])
			if err != nil {
				return err
			}
			if coordinatorReachable(cfg.Addr) {
				err = openViaCoordinator(ctx, cfg, item)
			} else {
				err = openLocally(ctx, cfg, st, item)
			}
			if err != nil {
				return err
			}
			if !keep {
				if err := st.items.Remove(ctx, item.ID); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened %s\n", item.URL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the page in the list")
	return cmd
}

// openViaCoordinator asks the running coordinator to open the page, so the
// scroll position is restored by whoever hosts it.
func openViaCoordinator(ctx context.Context, cfg config.Config, item types.SavedItem) error {
	return pagectx.New("http://"+cfg.Addr).Open(ctx, item)
}

// openLocally opens the page with a host of our own and waits for the
// scroll restore before returning.
func openLocally(ctx context.Context, cfg config.Config, st *store, item types.SavedItem) error {
	if cfg.Host == config.HostExtension {
		return fmt.Errorf("no coordinator at %s; run `laterread serve` or pick --host chrome or firefox", cfg.Addr)
	}
	host, shutdown, err := buildHost(cfg, nil)
	if err != nil {
		return err
	}
	defer shutdown()

	ccfg := coordinatorConfig(cfg)
	coord := coordinator.New(st.items, st.kv, host, ccfg)
	if _, err := coord.Open(ctx, item); err != nil {
		return err
	}
	if item.ScrollPosition > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(ccfg.ScrollRestoreDelay + ccfg.HostTimeout):
		}
	}
	applog.Info("cli.opened", "id", item.ID, "host", cfg.Host)
	return nil
}

func newExportCmd(f *flags) *cobra.Command {
	var asJSON bool
	var outFile string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export saved pages as markdown or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			list := st.items.List(cmd.Context())
			now := time.Now()
			var output string
			if asJSON {
				output, err = export.JSON(list, now)
				if err != nil {
					return fmt.Errorf("generate JSON: %w", err)
				}
			} else {
				output = export.Markdown(list, now)
			}

			if outFile != "" {
				if err := os.WriteFile(outFile, []byte(output), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outFile, err)
				}
				pslog.Ctx(cmd.Context()).Info("export written", "path", outFile, "items", len(list))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "export as JSON instead of markdown")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default: stdout)")
	return cmd
}

func newCheckCmd(f *flags) *cobra.Command {
	var staleDays int
	var offline bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report saved pages that are dead, saved twice or waiting too long",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			reports := analyzer.NewReports(types.NewestFirst(st.items.List(ctx)))
			analyzer.AnalyzeStale(reports, time.Now(), staleDays)
			analyzer.AnalyzeDuplicates(reports)
			if !offline {
				results := make(chan analyzer.DeadLinkResult, len(reports))
				analyzer.AnalyzeDeadLinks(ctx, reports, results)
				close(results)
			}

			out := cmd.OutOrStdout()
			for _, r := range reports {
				var notes []string
				if r.Dead {
					notes = append(notes, "dead ("+r.DeadReason+")")
				}
				if r.Duplicate {
					notes = append(notes, "also saved as "+strings.Join(r.DuplicateOf, ", "))
				}
				if r.Stale {
					notes = append(notes, fmt.Sprintf("waiting %d days", r.AgeDays))
				}
				if len(notes) == 0 {
					continue
				}
				fmt.Fprintf(out, "%s  %s\n    %s\n", r.Item.ID, r.Item.DisplayTitle(), strings.Join(notes, "; "))
			}
			stats := analyzer.ComputeStats(reports)
			fmt.Fprintf(out, "%d pages: %d dead, %d duplicate, %d stale\n", stats.Total, stats.Dead, stats.Duplicates, stats.Stale)
			return nil
		},
	}
	cmd.Flags().IntVar(&staleDays, "stale-days", 30, "days after which a saved page counts as stale")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the dead link check")
	return cmd
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List Firefox profiles usable by the firefox host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := firefox.DiscoverProfiles()
			if err != nil {
				return fmt.Errorf("discover Firefox profiles: %w", err)
			}
			if len(profiles) == 0 {
				return errors.New("no Firefox profiles found")
			}
			for _, p := range profiles {
				suffix := ""
				if p.IsDefault {
					suffix = " [default]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)%s\n", p.Name, p.Path, suffix)
			}
			return nil
		},
	}
}

func newConfigCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault(f.configPath, force)
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("config written", "path", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
