// Package fxapp assembles the broker's fx dependency graph: registry,
// cluster adapter, front-end messenger, package manager, orchestrator,
// janitor, and HTTP ingress (spec.md §4, whole-system wiring).
//
// Grounded on pkg/fx/app's module composition (app.CommonModules,
// app.UCANModule, app.PDPModule pattern of fx.Module + fx.Provide groups).
package fxapp

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/fx"

	"github.com/baca2/kolejka-broker/internal/audit"
	"github.com/baca2/kolejka-broker/internal/broker/builder"
	"github.com/baca2/kolejka-broker/internal/broker/cluster"
	"github.com/baca2/kolejka-broker/internal/broker/frontend"
	"github.com/baca2/kolejka-broker/internal/broker/janitor"
	"github.com/baca2/kolejka-broker/internal/broker/orchestrator"
	"github.com/baca2/kolejka-broker/internal/broker/pkgmanager"
	"github.com/baca2/kolejka-broker/internal/broker/registry"
	"github.com/baca2/kolejka-broker/internal/broker/state"
	"github.com/baca2/kolejka-broker/internal/config"
	"github.com/baca2/kolejka-broker/internal/echofx"
	"github.com/baca2/kolejka-broker/internal/httpapi"
	"github.com/baca2/kolejka-broker/pkg/kolejkapackage"
)

var log = logging.Logger("fx/app")

// Module provides every broker component and wires the HTTP ingress
// handler into echofx's route-registrar group.
var Module = fx.Module("broker",
	fx.Provide(
		newRegistry,
		newPackageLoader,
		newClusterAdapter,
		newFrontendMessenger,
		newPackageManager,
		newMaster,
		newJanitor,
		newAuditLog,
		fx.Annotate(
			newHTTPHandler,
			fx.As(new(echofx.RouteRegistrar)),
			fx.ResultTags(`group:"route_registrar"`),
		),
	),
	fx.Invoke(
		startJanitor,
	),
)

func newRegistry() *registry.Registry {
	return registry.New()
}

func newPackageLoader() state.PackageLoader {
	return func(ctx context.Context, packagePath, commitID string) (*kolejkapackage.Package, error) {
		return kolejkapackage.Load(ctx, packagePath, commitID)
	}
}

func newClusterAdapter(cfg config.App) cluster.Adapter {
	paths := cluster.Paths{BuildNamespace: cfg.BuildNamespace}
	runner := cluster.ExecRunner{}
	if cfg.ActiveWait {
		return &cluster.ActiveAdapter{
			Runner:      runner,
			Paths:       paths,
			ClusterConf: cfg.ClusterConf,
		}
	}
	return &cluster.PassiveAdapter{
		Runner:            runner,
		Paths:             paths,
		ClusterConf:       cfg.ClusterConf,
		CallbackURLPrefix: cfg.CallbackURLPrefix,
	}
}

func newFrontendMessenger(cfg config.App) frontend.Messenger {
	return frontend.NewBacaMessenger(cfg.FrontEndSuccessURL, cfg.FrontEndErrorURL)
}

func newPackageManager(cfg config.App) *pkgmanager.Manager {
	buildCfg := builder.Config{
		Limits: builder.Limits{
			Image:     cfg.BuildLimits.Image,
			Memory:    cfg.BuildLimits.Memory,
			Time:      cfg.BuildLimits.Time,
			Swap:      cfg.BuildLimits.Swap,
			CPUs:      cfg.BuildLimits.CPUs,
			Network:   cfg.BuildLimits.Network,
			Storage:   cfg.BuildLimits.Storage,
			Workspace: cfg.BuildLimits.Workspace,
		},
		Shortcut: cfg.BuildLimits.Shortcut,
	}

	var refresher *pkgmanager.Refresher
	if cfg.ForceRebuildPackages {
		refresher = &pkgmanager.Refresher{
			ClientBinaryURL: cfg.ClusterClientBinaryURL,
			JudgeBinaryURL:  cfg.ClusterJudgeBinaryURL,
			DestDir:         cfg.SubmitsDir,
		}
	}

	return pkgmanager.New(cfg.ForceRebuildPackages, buildCfg, refresher)
}

func newMaster(
	cfg config.App,
	reg *registry.Registry,
	clusterAdapter cluster.Adapter,
	messenger frontend.Messenger,
	packages *pkgmanager.Manager,
	load state.PackageLoader,
	auditLog *audit.Log,
) *orchestrator.Master {
	return &orchestrator.Master{
		Registry:           reg,
		Cluster:            clusterAdapter,
		Frontend:           messenger,
		Packages:           packages,
		Load:               load,
		BuildNamespace:     cfg.BuildNamespace,
		ActiveMode:         cfg.ActiveWait,
		SharedSecretBroker: cfg.SharedSecretBroker,
		Audit:              auditLog,
	}
}

func newJanitor(cfg config.App, reg *registry.Registry, master *orchestrator.Master) *janitor.Janitor {
	return &janitor.Janitor{
		Registry: reg,
		Trasher:  master,
		Interval: cfg.JanitorInterval,
		Timeout:  cfg.TaskSubmitTimeout,
	}
}

func newHTTPHandler(cfg config.App, master *orchestrator.Master) *httpapi.Handler {
	return &httpapi.Handler{
		Master:               master,
		CallbackURLPrefix:    cfg.CallbackURLPrefix,
		SharedSecretFrontEnd: cfg.SharedSecretFrontEnd,
		ActiveMode:           cfg.ActiveWait,
	}
}

// newAuditLog opens the optional audit database, if configured. A nil
// *audit.Log is a valid value: every method on it is a no-op, so Master
// need not branch on whether auditing is enabled.
func newAuditLog(cfg config.App, lc fx.Lifecycle) *audit.Log {
	if cfg.AuditDB == "" {
		return nil
	}
	a, err := audit.Open(cfg.AuditDB)
	if err != nil {
		// best-effort: the audit log is non-authoritative (spec.md §9
		// "Persistence"), so a failure to open it must not block startup.
		log.Warnf("failed to open audit db %q: %v", cfg.AuditDB, err)
		return nil
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return a.Close()
		},
	})
	return a
}

// startJanitor runs the janitor's sweep loop for the fx app's lifetime,
// cancelled cooperatively on shutdown (spec.md §4.8).
func startJanitor(lc fx.Lifecycle, j *janitor.Janitor) {
	var cancel context.CancelFunc
	var done chan struct{}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			done = make(chan struct{})
			go func() {
				defer close(done)
				j.Run(runCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done != nil {
				select {
				case <-done:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		},
	})
}
