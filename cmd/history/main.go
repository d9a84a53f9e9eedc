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
	"errors"
	"flag"
	"fmt"

	"solana-fee-ledger-go/internal/common"
	"solana-fee-ledger-go/internal/config"
	"solana-fee-ledger-go/internal/database"
	"solana-fee-ledger-go/internal/models"
	"solana-fee-ledger-go/internal/store"

	"go.uber.org/zap"
)

func formatTxRef(txRef string) string {
	if txRef == "" {
		return "none"
	}
	if len(txRef) > 12 {
		return txRef[:12] + "..."
	}
	return txRef
}

func printEntry(entry models.LedgerEntry, isLast bool) {
	symbol := common.BoxPrefix(isLast)

	fmt.Printf("%s %-17s %-10s %12s  tx: %-15s op: %s  %s\n",
		symbol,
		entry.ChargeType,
		entry.Status,
		entry.FeeAmount.String(),
		formatTxRef(entry.ChainTxRef),
		entry.OperationId,
		entry.CreatedAt.Format("2006-01-02 15:04:05"))

	if entry.Status == models.EntryFailed && entry.FailureReason != "" {
		fmt.Printf("%s   reason: %s\n", common.BoxPrefix(isLast), entry.FailureReason)
	}
}

func printSubscription(ctx context.Context, dbService *database.Service, userId string) {
	sub, err := dbService.GetSubscription(ctx, userId)
	if err != nil {
		fmt.Printf("│  Subscription: unavailable (%v)\n", err)
		return
	}

	line := fmt.Sprintf("│  Subscription: %s (%s)", sub.Tier, sub.Status)
	if sub.Expiry != nil {
		line += fmt.Sprintf(", expires %s", sub.Expiry.Format("2006-01-02 15:04:05"))
	}
	fmt.Println(line)
}

func printTradingWallet(ctx context.Context, dbService *database.Service, userId string) {
	wallet, err := dbService.ActiveTradingWallet(ctx, userId)
	if err != nil {
		if errors.Is(err, store.ErrNoTradingWallet) {
			fmt.Println("│  Trading wallet: none connected")
		} else {
			fmt.Printf("│  Trading wallet: unavailable (%v)\n", err)
		}
		return
	}
	fmt.Printf("│  Trading wallet: %s (connected %s)\n",
		wallet.Address, wallet.ConnectedAt.Format("2006-01-02"))
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "User email (required)")
	limitFlag := flag.Int("limit", 25, "Maximum entries to print")
	offsetFlag := flag.Int("offset", 0, "Entries to skip")
	flag.Parse()

	if *emailFlag == "" {
		logger.Fatal("The --email flag is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	user, err := dbService.GetUserByEmail(ctx, *emailFlag)
	if err != nil {
		logger.Fatal("User lookup failed", zap.String("email", *emailFlag), zap.Error(err))
	}

	entries, err := dbService.History(ctx, user.Id, *limitFlag, *offsetFlag)
	if err != nil {
		logger.Fatal("Failed to query charge history", zap.Error(err))
	}

	common.PrintHeader("CHARGE HISTORY", common.DefaultWidth)
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s\n", user.Id)
	printSubscription(ctx, dbService, user.Id)
	printTradingWallet(ctx, dbService, user.Id)
	common.PrintBoxSeparator(78)

	if len(entries) == 0 {
		fmt.Println("└  No charges recorded")
	}
	for i, entry := range entries {
		printEntry(entry, i == len(entries)-1)
	}

	summary := fmt.Sprintf("SUMMARY: %d entries shown (newest first, offset %d)", len(entries), *offsetFlag)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("History query completed",
		zap.String("user_id", user.Id),
		zap.Int("entries", len(entries)))
}
