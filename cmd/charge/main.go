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
	"solana-fee-ledger-go/internal/models"
	"solana-fee-ledger-go/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "User email (required)")
	typeFlag := flag.String("type", string(models.ChargeTradeFee), "Charge type: trade_fee, wallet_creation, subscription_fee")
	amountFlag := flag.String("amount", "0", "Base amount the fee is computed from (token units)")
	opFlag := flag.String("op", "", "Operation id (defaults to a fresh UUID; reuse an id to test idempotency)")
	flag.Parse()

	if *emailFlag == "" {
		zap.L().Fatal("The --email flag is required")
	}

	chargeType := models.ChargeType(*typeFlag)
	if !chargeType.Valid() {
		zap.L().Fatal("Unknown charge type", zap.String("type", *typeFlag))
	}

	baseAmount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		zap.L().Fatal("Invalid amount", zap.String("amount", *amountFlag), zap.Error(err))
	}

	operationId := *opFlag
	if operationId == "" {
		operationId = fmt.Sprintf("manual:%s", uuid.New().String())
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

	result, err := services.Orchestrator.Charge(ctx, user.Id, chargeType, operationId, baseAmount)
	if err != nil {
		var insufficient *orchestrator.InsufficientBalanceError
		switch {
		case errors.As(err, &insufficient):
			zap.L().Fatal("Insufficient balance",
				zap.String("required", insufficient.Required.String()),
				zap.String("available", insufficient.Available.String()),
				zap.String("shortfall", insufficient.Shortfall().String()))
		case errors.Is(err, orchestrator.ErrChargeIndeterminate):
			zap.L().Fatal("Charge outcome unknown; the reconciler will resolve it. Do NOT retry this operation id.",
				zap.String("operation_id", operationId),
				zap.Error(err))
		case errors.Is(err, orchestrator.ErrBalanceUnavailable):
			zap.L().Fatal("Balance check failed; nothing was charged. Safe to retry.",
				zap.String("operation_id", operationId),
				zap.Error(err))
		default:
			zap.L().Fatal("Charge failed", zap.Error(err))
		}
	}

	common.PrintHeader("CHARGE COLLECTED", common.DefaultWidth)
	fmt.Printf("User:         %s (%s)\n", user.Name, user.Email)
	fmt.Printf("Type:         %s\n", result.ChargeType)
	fmt.Printf("Operation:    %s\n", operationId)
	fmt.Printf("Fee charged:  %s\n", result.FeeCharged.String())
	if result.EntryId != "" {
		fmt.Printf("Entry:        %s\n", result.EntryId)
		fmt.Printf("Chain tx:     %s\n", result.ChainTxRef)
		fmt.Printf("New balance:  %s\n", result.NewBalance.String())
	} else {
		fmt.Println("Fee was zero; nothing was recorded or transferred")
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}
