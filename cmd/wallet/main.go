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
	"flag"
	"fmt"

	"solana-fee-ledger-go/internal/common"
	"solana-fee-ledger-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "User email (required)")
	actionFlag := flag.String("action", "", "Action: connect, replace, disconnect, create, add-analysis, list")
	keyFlag := flag.String("key", "", "Base58 private key (connect, replace)")
	addressFlag := flag.String("address", "", "Wallet address to monitor (add-analysis)")
	labelFlag := flag.String("label", "", "Label for the wallet (create, add-analysis)")
	flag.Parse()

	if *emailFlag == "" || *actionFlag == "" {
		zap.L().Fatal("Both flags are required: --email and --action")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	user, err := services.DbService.GetUserByEmail(ctx, *emailFlag)
	if err != nil {
		zap.L().Fatal("User lookup failed", zap.String("email", *emailFlag), zap.Error(err))
	}

	manager := services.WalletManager

	switch *actionFlag {
	case "connect":
		if *keyFlag == "" {
			zap.L().Fatal("The --key flag is required for connect")
		}
		wallet, err := manager.Connect(ctx, user.Id, *keyFlag)
		if err != nil {
			zap.L().Fatal("Failed to connect trading wallet", zap.Error(err))
		}
		fmt.Printf("Trading wallet connected: %s\n", wallet.Address)

	case "replace":
		if *keyFlag == "" {
			zap.L().Fatal("The --key flag is required for replace")
		}
		wallet, err := manager.Replace(ctx, user.Id, *keyFlag)
		if err != nil {
			zap.L().Fatal("Failed to replace trading wallet", zap.Error(err))
		}
		fmt.Printf("Trading wallet replaced: %s\n", wallet.Address)

	case "disconnect":
		if err := manager.Disconnect(ctx, user.Id); err != nil {
			zap.L().Fatal("Failed to disconnect trading wallet", zap.Error(err))
		}
		fmt.Println("Trading wallet disconnected")

	case "create":
		wallet, err := manager.CreateWallet(ctx, user.Id, *labelFlag)
		if err != nil {
			zap.L().Fatal("Failed to create wallet", zap.Error(err))
		}
		fmt.Printf("Wallet created: %s\n", wallet.Address)

	case "add-analysis":
		if *addressFlag == "" {
			zap.L().Fatal("The --address flag is required for add-analysis")
		}
		wallet, err := manager.AddAnalysisWallet(ctx, user.Id, *addressFlag, *labelFlag)
		if err != nil {
			zap.L().Fatal("Failed to add analysis wallet", zap.Error(err))
		}
		fmt.Printf("Analysis wallet added: %s\n", wallet.Address)

	case "list":
		printWallets(ctx, services, user.Id)

	default:
		zap.L().Fatal("Unknown action", zap.String("action", *actionFlag))
	}
}

func printWallets(ctx context.Context, services *common.Services, userId string) {
	common.PrintHeader("WALLETS", common.DefaultWidth)

	if wallet, err := services.WalletManager.Current(ctx, userId); err == nil {
		fmt.Printf("Trading: %s (connected %s)\n", wallet.Address, wallet.ConnectedAt.Format("2006-01-02"))
	} else {
		fmt.Println("Trading: none connected")
	}

	wallets, err := services.WalletManager.ListAnalysisWallets(ctx, userId)
	if err != nil {
		zap.L().Fatal("Failed to list analysis wallets", zap.Error(err))
	}
	fmt.Printf("Analysis wallets: %d\n", len(wallets))
	for i, w := range wallets {
		label := w.Label
		if label == "" {
			label = "(no label)"
		}
		fmt.Printf("%s %s  %s\n", common.BoxPrefix(i == len(wallets)-1), w.Address, label)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}
