package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"pkt.systems/pslog"

	"github.com/lotas/laterread/internal/applog"
	"github.com/lotas/laterread/internal/browser"
	"github.com/lotas/laterread/internal/chrome"
	"github.com/lotas/laterread/internal/config"
	"github.com/lotas/laterread/internal/coordinator"
	"github.com/lotas/laterread/internal/firefox"
	"github.com/lotas/laterread/internal/items"
	"github.com/lotas/laterread/internal/server"
	"github.com/lotas/laterread/internal/storage"
	"github.com/lotas/laterread/internal/tui"
)

const watchDebounce = 200 * time.Millisecond

// store is the opened database with its item store.
type store struct {
	db    *sql.DB
	kv    *storage.KV
	items *items.Store
}

func openStore(cfg config.Config) (*store, error) {
	db, err := storage.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	kv := storage.NewKV(db)
	return &store{db: db, kv: kv, items: items.New(kv)}, nil
}

func (s *store) Close() {
	s.db.Close()
}

func coordinatorConfig(cfg config.Config) coordinator.Config {
	c := coordinator.DefaultConfig()
	c.ScrollRestoreDelay = cfg.ScrollRestoreDelay
	c.PageCheckDelay = cfg.PageCheckDelay
	return c
}

func popupConfig(cfg config.Config) tui.PopupConfig {
	c := tui.DefaultPopupConfig()
	c.CloseTabDelay = cfg.CloseTabDelay
	c.StatusClearDelay = cfg.StatusClearDelay
	return c
}

// buildHost returns the configured page host and a shutdown func. The
// extension host talks through srv.
func buildHost(cfg config.Config, srv *server.Server) (browser.Host, func(), error) {
	switch cfg.Host {
	case config.HostChrome:
		h := chrome.New(chrome.Options{RemoteURL: cfg.ChromeURL, Headless: cfg.ChromeHeadless})
		return h, h.Shutdown, nil
	case config.HostFirefox:
		profile, err := resolveProfile(cfg.FirefoxProfile)
		if err != nil {
			return nil, nil, err
		}
		applog.Info("host.firefox", "profile", profile.Name)
		return firefox.NewSessionHost(profile.Path), func() {}, nil
	default:
		return server.NewBridge(srv), func() {}, nil
	}
}

// resolveProfile picks the Firefox profile by name, asking interactively
// when several exist and none is named.
func resolveProfile(name string) (firefox.Profile, error) {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		return firefox.Profile{}, fmt.Errorf("discover Firefox profiles: %w", err)
	}
	if name != "" || len(profiles) <= 1 {
		return firefox.SelectProfile(profiles, name)
	}
	final, err := tea.NewProgram(tui.NewProfilePicker(profiles), tea.WithAltScreen()).Run()
	if err != nil {
		return firefox.Profile{}, fmt.Errorf("profile picker: %w", err)
	}
	p, ok := final.(tui.ProfilePicker).Chosen()
	if !ok {
		return firefox.Profile{}, errors.New("no profile selected")
	}
	return p, nil
}

// stack is a running coordinator with its websocket server and storage
// watcher.
type stack struct {
	store *store
	srv   *server.Server
	coord *coordinator.Coordinator
	errc  chan error
	stop  func()
}

func startStack(ctx context.Context, cfg config.Config) (*stack, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	srv := server.New(cfg.Addr, nil)
	host, shutdown, err := buildHost(cfg, srv)
	if err != nil {
		st.Close()
		return nil, err
	}
	coord := coordinator.New(st.items, st.kv, host, coordinatorConfig(cfg))
	srv.SetBackend(coord)
	coord.Attach(srv)

	ctx, cancel := context.WithCancel(ctx)
	s := &stack{store: st, srv: srv, coord: coord, errc: make(chan error, 2)}
	s.stop = func() {
		cancel()
		shutdown()
		st.Close()
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			s.errc <- err
		}
	}()
	go func() {
		if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.errc <- err
		}
	}()
	go func() {
		if err := st.kv.Watch(ctx, cfg.DBPath, watchDebounce); err != nil && !errors.Is(err, context.Canceled) {
			applog.Error("kv.watch", err)
		}
	}()
	applog.Info("stack.started", "addr", cfg.Addr, "host", cfg.Host)
	return s, nil
}

// runPopup runs the coordinator in-process and shows the popup list.
func runPopup(ctx context.Context, cfg config.Config) error {
	s, err := startStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.stop()

	popup := tui.NewPopup(s.coord, popupConfig(cfg))
	defer popup.Stop()

	p := tea.NewProgram(popup, tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		// Another coordinator may already own the address; the popup still
		// works against the shared database.
		if err := <-s.errc; err != nil {
			applog.Error("stack", err)
		}
	}()
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// runServe runs the coordinator until ctx is cancelled.
func runServe(ctx context.Context, cfg config.Config) error {
	s, err := startStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.stop()

	logger := pslog.Ctx(ctx)
	logger.Info("coordinator listening", "addr", cfg.Addr, "host", cfg.Host, "db", cfg.DBPath)
	select {
	case <-ctx.Done():
		logger.Info("coordinator stopping")
		return nil
	case err := <-s.errc:
		return err
	}
}

// coordinatorReachable reports whether something accepts connections on
// addr.
func coordinatorReachable(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 300*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
