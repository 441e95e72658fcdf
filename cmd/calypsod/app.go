package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ex-calypso/internal/driver"
	"ex-calypso/internal/journal"
	"ex-calypso/internal/kernel"
	"ex-calypso/modules/commentcache"
	"ex-calypso/modules/jetpackconnect"
	"ex-calypso/modules/notices"
	"ex-calypso/modules/onboarding"
	"ex-calypso/pkg/calypso"
	"ex-calypso/pkg/wpcom"
)

func run() error {
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}

	cfg, err := loadConfig(registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))

	actionJournal, err := openJournal(context.Background(), logger, cfg)
	if err != nil {
		return err
	}
	if actionJournal != nil {
		defer func() {
			if err := actionJournal.Close(); err != nil {
				logger.Error("close journal", "error", err)
			}
		}()
	}

	kernelRuntime := buildKernelRuntime(logger, cfg, actionJournal)

	client, err := wpcom.New(cfg.wpcom, wpcom.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("new wpcom client: %w", err)
	}
	if err := registerRuntimeServices(kernelRuntime, logger, client); err != nil {
		return err
	}
	if err := registerRuntimeModules(context.Background(), kernelRuntime, cfg); err != nil {
		return err
	}
	if err := replayJournal(context.Background(), actionJournal, kernelRuntime, cfg); err != nil {
		return err
	}

	drivers, err := registry.BuildEnabled(context.Background(), cfg.drivers, driver.Deps{
		Logger:   logger,
		Services: kernelRuntime.Services(),
		Login:    cfg.login,
	})
	if err != nil {
		return fmt.Errorf("build drivers: %w", err)
	}
	if err := registerRuntimeDrivers(kernelRuntime, drivers); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kernelRuntime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

// journaledKinds lists the action kinds persisted to the journal. Onboarding
// credentials carry site tokens and stay in memory only.
var journaledKinds = []calypso.ActionKind{
	calypso.ActionKindCommentsQueryUpdate,
	calypso.ActionKindCommentsListRequest,
	calypso.ActionKindCommentsChangeStatus,
	calypso.ActionKindCommentsDelete,
	calypso.ActionKindConnectCheckURL,
	calypso.ActionKindConnectCheckURLReceive,
	calypso.ActionKindConnectConfirmStatus,
	calypso.ActionKindConnectDismissURL,
	calypso.ActionKindOnboardingSettingsRequest,
	calypso.ActionKindOnboardingSettingsReceive,
	calypso.ActionKindOnboardingSettingsSave,
	calypso.ActionKindNoticeCreate,
	calypso.ActionKindNoticeRemove,
}

func openJournal(ctx context.Context, logger *slog.Logger, cfg appConfig) (*journal.Journal, error) {
	if cfg.journalPath == "" {
		return nil, nil
	}

	actionJournal, err := journal.Open(ctx, cfg.journalPath,
		journal.WithLogger(logger),
		journal.WithKinds(journaledKinds...),
	)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return actionJournal, nil
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig, actionJournal *journal.Journal) *kernel.Kernel {
	options := []kernel.Option{
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultHandlerTimeout(cfg.handlerTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
	}
	if actionJournal != nil {
		options = append(options, kernel.WithDispatchObserver(actionJournal.Append))
	}

	return kernel.New(options...)
}

func registerRuntimeServices(kernelRuntime *kernel.Kernel, logger *slog.Logger, client *wpcom.Client) error {
	if err := kernelRuntime.RegisterService(calypso.ServiceLogger, logger); err != nil {
		return fmt.Errorf("register logger service: %w", err)
	}
	if client == nil {
		return fmt.Errorf("register wpcom service: nil client")
	}
	if err := kernelRuntime.RegisterService(calypso.ServiceWPCOM, client); err != nil {
		return fmt.Errorf("register wpcom service: %w", err)
	}

	return nil
}

func registerRuntimeModules(ctx context.Context, kernelRuntime *kernel.Kernel, cfg appConfig) error {
	modules := []calypso.Module{
		commentcache.New(),
		notices.New(notices.WithMaxNotices(cfg.maxNotices)),
		jetpackconnect.New(jetpackconnect.WithEnvID(cfg.jetpackEnv)),
		onboarding.New(),
	}
	for _, module := range modules {
		if err := kernelRuntime.RegisterModule(ctx, module); err != nil {
			return fmt.Errorf("register %s module: %w", module.Name(), err)
		}
	}

	return nil
}

// replayJournal rebuilds module state from the journal. It runs after module
// registration and before drivers start so no live action interleaves.
func replayJournal(
	ctx context.Context,
	actionJournal *journal.Journal,
	kernelRuntime *kernel.Kernel,
	cfg appConfig,
) error {
	if actionJournal == nil || !cfg.journalReplay {
		return nil
	}
	if _, err := actionJournal.Replay(ctx, kernelRuntime); err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}

	return nil
}

func registerRuntimeDrivers(kernelRuntime *kernel.Kernel, drivers []calypso.Driver) error {
	for _, runtimeDriver := range drivers {
		if err := kernelRuntime.RegisterDriver(runtimeDriver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtimeDriver.Name(), err)
		}
	}

	return nil
}
