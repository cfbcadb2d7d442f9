package scenario

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"converge/internal/cluster"
	"converge/pkg/logging"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Service string
	Package cluster.Package
	// UpgradeFrom installs this version first and then upgrades to
	// Package. "name@version" installs a differently named package, e.g.
	// "beta-hdfs@2.0.0".
	UpgradeFrom string
	// Ready blocks until the service is healthy after an install or
	// upgrade.
	Ready   func(ctx context.Context) error
	Timeout time.Duration
}

// Session owns the installation of the service under test. Create it,
// defer Close, then Open:
//
//	s := NewSession(c, opts)
//	defer s.Close(context.Background())
//	if err := s.Open(ctx); err != nil { ... }
//
// Close uninstalls whatever Open managed to start installing, whatever the
// outcome of the scenarios.
type Session struct {
	installer cluster.Installer
	opts      SessionOptions

	mu        sync.Mutex
	installed []cluster.Package
}

// NewSession creates a Session. Nothing is installed until Open.
func NewSession(installer cluster.Installer, opts SessionOptions) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	return &Session{installer: installer, opts: opts}
}

// fromPackage returns the package UpgradeFrom names.
func (s *Session) fromPackage() cluster.Package {
	pkg := cluster.Package{Name: s.opts.Package.Name, Version: s.opts.UpgradeFrom, Options: s.opts.Package.Options}
	if name, version, ok := strings.Cut(s.opts.UpgradeFrom, "@"); ok {
		pkg.Name = name
		pkg.Version = version
	}
	return pkg
}

// Open removes leftovers of an earlier run, then installs the service,
// through the upgrade path when UpgradeFrom is set, and waits for it to be
// ready.
func (s *Session) Open(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.installer.Uninstall(ctx, s.opts.Service, s.opts.Package); err != nil {
		logging.Debug("Session", "Pre-install cleanup of %s: %v", s.opts.Service, err)
	}

	if s.opts.UpgradeFrom != "" {
		from := s.fromPackage()
		if err := s.install(ctx, from); err != nil {
			return err
		}
		logging.Info("Session", "Upgrading %s from %s %s to %s %s", s.opts.Service, from.Name, from.Version, s.opts.Package.Name, s.opts.Package.Version)
		if err := s.installer.Upgrade(ctx, s.opts.Service, s.opts.Package); err != nil {
			return fmt.Errorf("failed to upgrade %s: %w", s.opts.Service, err)
		}
		s.track(s.opts.Package)
		return s.ready(ctx, "upgrade")
	}
	return s.install(ctx, s.opts.Package)
}

func (s *Session) install(ctx context.Context, pkg cluster.Package) error {
	logging.Info("Session", "Installing %s %s as %s", pkg.Name, pkg.Version, s.opts.Service)
	s.track(pkg)
	if err := s.installer.Install(ctx, s.opts.Service, pkg); err != nil {
		return fmt.Errorf("failed to install %s: %w", pkg.Name, err)
	}
	return s.ready(ctx, "install")
}

func (s *Session) track(pkg cluster.Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed = append(s.installed, pkg)
}

func (s *Session) ready(ctx context.Context, stage string) error {
	if s.opts.Ready == nil {
		return nil
	}
	if err := s.opts.Ready(ctx); err != nil {
		return fmt.Errorf("%s of %s did not become healthy: %w", stage, s.opts.Service, err)
	}
	return nil
}

// Installed reports whether Open started an install that Close has not
// yet removed.
func (s *Session) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.installed) > 0
}

// Close uninstalls the service if Open installed anything. It is safe to
// call more than once and ignores cancellation of ctx so that teardown
// still runs after a scenario timeout.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if len(s.installed) == 0 {
		s.mu.Unlock()
		return nil
	}
	pkg := s.installed[len(s.installed)-1]
	s.installed = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()

	logging.Info("Session", "Uninstalling %s", s.opts.Service)
	if err := s.installer.Uninstall(ctx, s.opts.Service, pkg); err != nil {
		logging.Error("Session", err, "Uninstall of %s failed", s.opts.Service)
		return fmt.Errorf("failed to uninstall %s: %w", s.opts.Service, err)
	}
	return nil
}
