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
	"solana-fee-ledger-go/internal/models"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "User email (required)")
	tierFlag := flag.String("tier", "", "Target tier (required); free cancels any paid plan")
	flag.Parse()

	if *emailFlag == "" || *tierFlag == "" {
		zap.L().Fatal("Both flags are required: --email and --tier")
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

	sub, err := services.Subscriptions.Subscribe(ctx, user.Id, models.Tier(*tierFlag))
	if err != nil {
		zap.L().Fatal("Subscription failed", zap.Error(err))
	}

	common.PrintHeader("SUBSCRIPTION UPDATED", common.DefaultWidth)
	fmt.Printf("User:   %s (%s)\n", user.Name, user.Email)
	fmt.Printf("Tier:   %s\n", sub.Tier)
	fmt.Printf("Status: %s\n", sub.Status)
	if sub.Expiry != nil {
		fmt.Printf("Expiry: %s\n", sub.Expiry.Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Println("Expiry: none (free tier)")
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}
