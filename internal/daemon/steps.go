package daemon

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"coind/internal/bootstrap"
	"coind/internal/config"
	"coind/internal/instance"
	"coind/internal/ipc"
	"coind/internal/keystore"
	"coind/internal/ledger"
	"coind/internal/logging"
	"coind/internal/metrics"
	"coind/internal/p2p"
	"coind/internal/preflight"
	"coind/internal/shutdown"
	"coind/internal/storage"
	"coind/internal/threadgroup"
	"coind/internal/workers"
)

// Step names, in startup order.
const (
	StepCryptoSanity   = "crypto-sanity"
	StepParameters     = "parameters"
	StepDataDirLock    = "datadir-lock"
	StepLogging        = "logging"
	StepStorage        = "storage-environment"
	StepKeyStore       = "key-store"
	StepLedgerIndex    = "ledger-index"
	StepAddressReindex = "address-reindex"
	StepDiskSpace      = "disk-space"
	StepWorkers        = "workers"
	StepControl        = "control-service"
)

func (d *Daemon) steps() []bootstrap.Step {
	return []bootstrap.Step{
		{Name: StepCryptoSanity, Critical: true, Run: d.checkCrypto},
		{Name: StepParameters, Critical: true, Run: d.resolveParameters},
		{Name: StepDataDirLock, Critical: true, Run: d.lockDataDir},
		{Name: StepLogging, Critical: false, Run: d.openLogs},
		{Name: StepStorage, Critical: true, Run: d.openStorage},
		{Name: StepKeyStore, Critical: true, Run: d.loadKeyStore},
		{Name: StepLedgerIndex, Critical: true, Run: d.loadLedger},
		{Name: StepAddressReindex, Critical: true, Run: d.reindexAddresses},
		{Name: StepDiskSpace, Critical: true, Run: d.checkDiskSpace},
		{Name: StepWorkers, Critical: true, Run: d.startWorkers},
		{Name: StepControl, Critical: true, Run: d.startControl},
	}
}

func (d *Daemon) checkCrypto(context.Context) error {
	result := preflight.CheckCrypto()
	if !result.Passed {
		return fmt.Errorf("elliptic curve and hash sanity check failed: %s", result.Detail)
	}
	return nil
}

func (d *Daemon) resolveParameters(context.Context) error {
	confPath, err := config.ConfigPathFor(d.params)
	if err != nil {
		return err
	}
	loaded, err := config.LoadFile(confPath, d.params)
	if err != nil {
		return err
	}
	settings, interactions, err := config.Resolve(d.params)
	if err != nil {
		return err
	}
	if loaded {
		d.logger.Info("configuration file loaded", logging.String("path", confPath))
	}
	for _, in := range interactions {
		d.logger.Info("parameter interaction",
			logging.String(logging.FieldReason, in.Trigger),
			logging.String("option", in.Key),
			logging.Bool("value", in.Value),
		)
	}
	if err := settings.EnsureDirectories(); err != nil {
		return err
	}
	d.settings = settings
	if len(settings.Warnings) > 0 {
		return bootstrap.Warning(errors.New(strings.Join(settings.Warnings, "; ")))
	}
	return nil
}

func (d *Daemon) lockDataDir(context.Context) error {
	s := d.settings
	lock := instance.New(s.DataDir)
	if err := lock.TryLock(); err != nil {
		return err
	}
	d.lock = lock
	d.coord.OnShutdown(shutdown.PhaseLock, "release-lock", func(context.Context) error {
		return lock.Release()
	})

	if err := instance.WritePIDFile(s.PIDFile); err != nil {
		return err
	}
	d.coord.OnShutdown(shutdown.PhasePIDFile, "remove-pid-file", func(context.Context) error {
		return instance.RemovePIDFile(s.PIDFile)
	})
	return nil
}

// openLogs moves logging from the console to debug.log. Failure keeps the
// console logger and startup continues.
func (d *Daemon) openLogs(context.Context) error {
	s := d.settings
	var shrinkErr error
	if s.ShrinkDebugFile {
		shrunk, err := logging.ShrinkFile(s.DebugLogPath())
		if err != nil {
			shrinkErr = fmt.Errorf("shrink debug log: %w", err)
		} else if shrunk {
			d.logger.Debug("debug log shrunk", logging.String("path", s.DebugLogPath()))
		}
	}

	out, err := logging.NewFromSettings(s, d.runID)
	if err != nil {
		return errors.Join(shrinkErr, fmt.Errorf("open debug log: %w", err))
	}
	d.output = out
	d.logSwitch.Set(out.Logger.Handler())
	d.coord.OnShutdown(shutdown.PhaseUnregister, "close-debug-log", func(context.Context) error {
		d.logSwitch.Set(d.console)
		return out.Close()
	})
	d.logger.Info("logging to data directory",
		logging.String("path", s.DebugLogPath()),
		logging.String("format", s.LogFormat),
	)
	return shrinkErr
}

func (d *Daemon) openStorage(ctx context.Context) error {
	env, outcome, err := storage.Open(ctx, d.settings.DataDir, storage.Options{Logger: d.logger})
	if err != nil {
		return err
	}
	d.env = env
	d.coord.OnShutdown(shutdown.PhaseStorage, "close-storage", func(context.Context) error {
		return errors.Join(env.Flush(), env.Close())
	})
	if outcome == storage.OutcomeRecoveredWithWarning {
		return bootstrap.Warning(env.Repair())
	}
	return nil
}

func (d *Daemon) loadKeyStore(ctx context.Context) error {
	s := d.settings
	if s.DisableWallet {
		d.logger.Info("key store disabled")
		return nil
	}
	path := s.WalletPath()
	verified, err := keystore.Verify(ctx, path, keystore.VerifyOptions{Logger: d.logger, Salvage: s.SalvageWallet})
	if err != nil {
		return err
	}
	var warnings []error
	if repair := verified.Repair(); repair != nil {
		warnings = append(warnings, fmt.Errorf("key store salvaged (%d keys): %w", verified.Salvaged, repair))
	}

	store, result, err := keystore.Load(ctx, path, keystore.LoadOptions{
		Logger:    d.logger,
		KeyPool:   s.KeyPool,
		Upgrade:   s.UpgradeWallet,
		UpgradeTo: s.UpgradeWalletMax,
	})
	if err != nil {
		if result.Status.Fatal() {
			logging.ErrorWithContext(d.logger, "key store unusable", "keystore_load_failed",
				logging.String("path", path),
				logging.String("status", result.Status.String()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, loadStatusHint(result.Status)),
			)
		}
		return err
	}
	d.store = store
	d.coord.OnShutdown(shutdown.PhaseKeyStore, "close-key-store", d.closeKeyStore)
	if result.Status == keystore.LoadNonCritical {
		warnings = append(warnings, fmt.Errorf("%d key store records could not be read", result.Skipped))
	}
	if len(warnings) > 0 {
		return bootstrap.Warning(errors.Join(warnings...))
	}
	return nil
}

func loadStatusHint(status keystore.LoadStatus) string {
	switch status {
	case keystore.LoadTooNew:
		return "upgrade coind or restore an older wallet file"
	case keystore.LoadNeedRewrite:
		return "restart coind to finish the migration"
	default:
		return "restart with -salvagewallet or restore the wallet from a backup"
	}
}

// closeKeyStore saves the best block locator, then flushes and closes.
func (d *Daemon) closeKeyStore(ctx context.Context) error {
	var errs []error
	if d.index != nil {
		height, hash := d.index.Tip()
		errs = append(errs, d.store.SetBestChain(ctx, keystore.BestBlock{Height: height, Hash: hash}))
	}
	errs = append(errs, d.store.Flush(ctx), d.store.Close())
	return errors.Join(errs...)
}

func (d *Daemon) loadLedger(ctx context.Context) error {
	s := d.settings
	idx, err := ledger.Load(ctx, d.env.DB(), ledger.Options{Logger: d.logger, Network: string(s.Network)})
	if err != nil {
		return err
	}
	d.index = idx
	d.metrics.WatchChainHeight(func() int64 {
		height, _ := idx.Tip()
		return height
	})
	if d.store == nil {
		return nil
	}
	if _, err := d.store.Rescan(ctx, chainView{idx: idx}, s.Rescan); err != nil {
		return fmt.Errorf("rescan key store: %w", err)
	}
	return nil
}

// reindexAddresses rebuilds the address index when -reindexaddr is set. An
// interrupted rebuild is not a failure: the sequencer notices the request
// before the next step.
func (d *Daemon) reindexAddresses(ctx context.Context) error {
	if !d.settings.ReindexAddr {
		return nil
	}
	_, err := ledger.RebuildAddressIndex(ctx, d.index, ledger.RebuildOptions{
		Logger:      d.logger,
		Interrupted: d.coord.Requested,
	})
	if errors.Is(err, ledger.ErrRebuildInterrupted) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Daemon) checkDiskSpace(context.Context) error {
	return preflight.Failed(preflight.RunAll(d.settings))
}

var newImporter = func(idx *ledger.Index, files []string, logger *slog.Logger) threadgroup.Func {
	return workers.NewChainImporter(idx, files, logger).Run
}

func (d *Daemon) startWorkers(context.Context) error {
	s := d.settings
	group := d.group
	d.coord.OnShutdown(shutdown.PhaseWorkers, "join-workers", func(context.Context) error {
		group.InterruptAll()
		group.JoinAll()
		return nil
	})

	if len(s.LoadBlocks) > 0 {
		if err := group.Go("import", newImporter(d.index, s.LoadBlocks, d.logger)); err != nil {
			return err
		}
	}

	if s.Listen {
		listeners, err := p2p.Bind(p2p.Options{
			Logger:         d.logger,
			Binds:          s.Bind,
			Port:           s.Port,
			MaxConnections: s.MaxConnections,
			Timeout:        s.ConnectTimeout,
		})
		if err != nil {
			return err
		}
		d.listeners = listeners
		d.coord.OnShutdown(shutdown.PhaseNetwork, "close-listeners", func(context.Context) error {
			return listeners.Close()
		})
		d.metrics.WatchInboundPeers(listeners.Active)
		for _, loop := range listeners.Loops() {
			if err := group.Go(loop.Name, loop.Run); err != nil {
				return err
			}
		}
	}

	if peers := append(slices.Clone(s.Connect), s.AddNode...); len(peers) > 0 {
		d.connector = p2p.NewConnector(p2p.ConnectorOptions{
			Logger:  d.logger,
			Peers:   peers,
			Timeout: s.ConnectTimeout,
		})
		if err := group.Go("net-connect", d.connector.Run); err != nil {
			return err
		}
		d.coord.OnShutdown(shutdown.PhaseNetwork, "stop-outbound", func(ctx context.Context) error {
			group.Interrupt("net-connect")
			return group.Wait(ctx, "net-connect")
		})
	}

	if s.EnableDarksend && !s.LiteMode {
		d.mixpool = workers.NewMixPool(workers.MixPoolOptions{
			Logger:            d.logger,
			Rounds:            s.DarksendRounds,
			LiquidityProvider: s.LiquidityProvider,
		})
		if err := group.Go("mixpool", d.mixpool.Run); err != nil {
			return err
		}
	}

	if d.store != nil {
		flusher := workers.NewWalletFlusher(d.store, workers.FlushOptions{Logger: d.logger})
		if err := group.Go("flush-wallet", flusher.Run); err != nil {
			return err
		}
		if s.Staking {
			d.staker = workers.NewStaker(d.index, d.store, workers.StakerOptions{Logger: d.logger, Interval: s.MinerSleep})
			if err := group.Go("staker", d.staker.Run); err != nil {
				return err
			}
			d.coord.OnShutdown(shutdown.PhaseCompute, "stop-staker", func(ctx context.Context) error {
				group.Interrupt("staker")
				return group.Wait(ctx, "staker")
			})
		}
	}

	if s.Masternode {
		seed, err := hex.DecodeString(s.MasternodePrivKey)
		if err != nil {
			return fmt.Errorf("decode masternode key: %w", err)
		}
		voter, err := workers.NewVoter(d.index, workers.VoterOptions{
			Logger: d.logger,
			Seed:   seed,
			Addr:   s.MasternodeAddr,
		})
		if err != nil {
			return err
		}
		d.voter = voter
		if err := group.Go("masternode", voter.Run); err != nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) startControl(ctx context.Context) error {
	s := d.settings
	srv, err := ipc.NewServer(ctx, s.SocketPath(), d, d.logger)
	if err != nil {
		return fmt.Errorf("start control service: %w", err)
	}
	d.rpc = srv
	d.coord.OnShutdown(shutdown.PhaseControl, "close-control-service", func(context.Context) error {
		return srv.Close()
	})
	if err := d.group.Go("rpc", srv.Serve); err != nil {
		return err
	}

	if s.MetricsBind == "" {
		return nil
	}
	ms, err := metrics.Listen(s.MetricsBind, d.metrics, d.env.Healthcheck, d.logger)
	if err != nil {
		return err
	}
	d.metricsServer = ms
	d.coord.OnShutdown(shutdown.PhaseControl, "close-metrics", func(context.Context) error {
		return ms.Close()
	})
	return d.group.Go("metrics", ms.Serve)
}
