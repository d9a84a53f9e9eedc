/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"solana-fee-ledger-go/internal/common"
	"solana-fee-ledger-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting billing daemon")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var wg sync.WaitGroup

	// Reconciliation sweep: resolve charges whose transfer fate was unknown
	// when the charge path gave up on them.
	wg.Add(1)
	go func() {
		defer wg.Done()
		services.Reconciler.Run(ctx, cfg.Billing.ReconcileSweepInterval)
	}()

	// Renewal sweep: advance subscriptions past their expiry.
	wg.Add(1)
	go func() {
		defer wg.Done()
		runRenewalSweep(ctx, services, cfg.Billing.RenewalSweepInterval)
	}()

	zap.L().Info("Billing daemon running",
		zap.Duration("renewal_sweep_interval", cfg.Billing.RenewalSweepInterval),
		zap.Duration("reconcile_sweep_interval", cfg.Billing.ReconcileSweepInterval))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping sweeps...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("All sweeps stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}

func runRenewalSweep(ctx context.Context, services *common.Services, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// One sweep at startup so a restarted daemon catches up immediately.
	if err := services.Subscriptions.SweepRenewals(ctx); err != nil {
		zap.L().Error("Renewal sweep failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := services.Subscriptions.SweepRenewals(ctx); err != nil {
				zap.L().Error("Renewal sweep failed", zap.Error(err))
			}
		}
	}
}
