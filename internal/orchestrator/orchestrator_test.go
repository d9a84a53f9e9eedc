package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"solana-fee-ledger-go/internal/chain"
	"solana-fee-ledger-go/internal/database"
	"solana-fee-ledger-go/internal/fees"
	"solana-fee-ledger-go/internal/models"
	"solana-fee-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const adminWallet = "admin-wallet-address"

// fakeOracle simulates a chain node: per-address balances that transfers
// actually debit, plus knobs for rejection and indeterminate outcomes.
type fakeOracle struct {
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	statuses  map[string]chain.ConfirmationStatus
	nextSig   int
	transfers []chain.TransferParams

	rejectTransfer        bool
	indeterminateTransfer bool
	indeterminateConfirm  bool
	balanceErr            error
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		balances: make(map[string]decimal.Decimal),
		statuses: make(map[string]chain.ConfirmationStatus),
	}
}

func (f *fakeOracle) GetBalance(_ context.Context, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.balances[address], nil
}

func (f *fakeOracle) Transfer(_ context.Context, params chain.TransferParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextSig++
	sig := fmt.Sprintf("sig-%d", f.nextSig)

	if f.rejectTransfer {
		return sig, fmt.Errorf("%w: simulated rejection", chain.ErrTransferRejected)
	}
	if f.indeterminateTransfer {
		// The signature is known client-side even when submission times out
		return sig, fmt.Errorf("%w: simulated timeout", chain.ErrTransferIndeterminate)
	}

	f.transfers = append(f.transfers, params)
	f.balances[params.FromAddress] = f.balances[params.FromAddress].Sub(params.Amount)
	f.statuses[sig] = chain.StatusConfirmed
	return sig, nil
}

func (f *fakeOracle) AwaitConfirmation(ctx context.Context, signature string) (chain.ConfirmationStatus, error) {
	if f.indeterminateConfirm {
		return chain.StatusIndeterminate, chain.ErrTransferIndeterminate
	}
	return f.CheckTransaction(ctx, signature)
}

func (f *fakeOracle) CheckTransaction(_ context.Context, signature string) (chain.ConfirmationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status, ok := f.statuses[signature]
	if !ok {
		return chain.StatusIndeterminate, fmt.Errorf("%w: %s", chain.ErrTransactionUnknown, signature)
	}
	return status, nil
}

func setupOrchestrator(t *testing.T) (*Orchestrator, *database.Service, *fakeOracle) {
	t.Helper()

	svc, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create database service: %v", err)
	}
	t.Cleanup(svc.Close)

	calc, err := fees.NewCalculator(models.FeeConfig{
		TradeFeeRate:       decimal.RequireFromString("0.001"),
		SubscriptionTxRate: decimal.RequireFromString("0.001"),
		WalletCreationFee:  decimal.RequireFromString("0.01"),
		MinimumFee:         decimal.RequireFromString("0.001"),
		TokenDecimals:      9,
	})
	if err != nil {
		t.Fatalf("Failed to create calculator: %v", err)
	}

	oracle := newFakeOracle()
	orch, err := NewOrchestrator(svc, svc, oracle, calc, adminWallet)
	if err != nil {
		t.Fatalf("Failed to create orchestrator: %v", err)
	}
	return orch, svc, oracle
}

func connectWallet(t *testing.T, svc *database.Service, oracle *fakeOracle, userId, balance string) *models.TradingWallet {
	t.Helper()
	wallet, err := svc.ConnectTradingWallet(context.Background(), userId, "wallet-"+userId, "enc-"+userId)
	if err != nil {
		t.Fatalf("ConnectTradingWallet failed: %v", err)
	}
	oracle.mu.Lock()
	oracle.balances[wallet.Address] = decimal.RequireFromString(balance)
	oracle.mu.Unlock()
	return wallet
}

func TestCharge_HappyPath(t *testing.T) {
	orch, svc, oracle := setupOrchestrator(t)
	ctx := context.Background()
	wallet := connectWallet(t, svc, oracle, "user1", "5")

	result, err := orch.Charge(ctx, "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("Charge failed: %v", err)
	}

	// 10 * 0.001 = 0.01 fee
	if !result.FeeCharged.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("Expected fee 0.01, got %s", result.FeeCharged.String())
	}
	if !result.NewBalance.Equal(decimal.RequireFromString("4.99")) {
		t.Errorf("Expected new balance 4.99, got %s", result.NewBalance.String())
	}
	if result.ChainTxRef == "" {
		t.Error("Expected a chain tx ref on the result")
	}

	entry, err := svc.GetLedgerEntry(ctx, result.EntryId)
	if err != nil {
		t.Fatalf("GetLedgerEntry failed: %v", err)
	}
	if entry.Status != models.EntryConfirmed {
		t.Errorf("Expected confirmed entry, got %s", entry.Status)
	}

	// The transfer went from the user's wallet to the admin wallet
	if len(oracle.transfers) != 1 {
		t.Fatalf("Expected 1 transfer, got %d", len(oracle.transfers))
	}
	if oracle.transfers[0].FromAddress != wallet.Address || oracle.transfers[0].ToAddress != adminWallet {
		t.Errorf("Unexpected transfer endpoints: %+v", oracle.transfers[0])
	}
}

func TestCharge_InsufficientBalanceWritesNoEntry(t *testing.T) {
	orch, svc, oracle := setupOrchestrator(t)
	ctx := context.Background()
	connectWallet(t, svc, oracle, "user1", "0.005")

	_, err := orch.Charge(ctx, "user1", models.ChargeWalletCreation, "create-1", decimal.Zero)
	var insufficientErr *InsufficientBalanceError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("Expected InsufficientBalanceError, got: %v", err)
	}
	if !insufficientErr.Shortfall().Equal(decimal.RequireFromString("0.005")) {
		t.Errorf("Expected shortfall 0.005, got %s", insufficientErr.Shortfall().String())
	}

	// A rejected pre-check leaves no trace in the ledger
	entries, err := svc.History(ctx, "user1", 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no ledger entries after a pre-check rejection, got %d", len(entries))
	}
	if len(oracle.transfers) != 0 {
		t.Errorf("Expected no transfers, got %d", len(oracle.transfers))
	}
}

func TestCharge_BalanceQueryFailureWritesNoEntry(t *testing.T) {
	orch, svc, oracle := setupOrchestrator(t)
	ctx := context.Background()
	connectWallet(t, svc, oracle, "user1", "5")

	oracle.balanceErr = errors.New("node unavailable")
	_, err := orch.Charge(ctx, "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10))
	if !errors.Is(err, ErrBalanceUnavailable) {
		t.Fatalf("Expected ErrBalanceUnavailable, got: %v", err)
	}
	// No entry was opened, so there is no failed charge to report
	if errors.Is(err, ErrChargeFailed) {
		t.Error("A failed balance query must not map to ErrChargeFailed")
	}

	entries, err := svc.History(ctx, "user1", 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no ledger entries after a failed pre-check, got %d", len(entries))
	}

	// The same operation retries cleanly once the node is reachable again
	oracle.balanceErr = nil
	if _, err := orch.Charge(ctx, "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10)); err != nil {
		t.Errorf("Retry after balance recovery should succeed, got: %v", err)
	}
}

func TestCharge_NoTradingWallet(t *testing.T) {
	orch, _, _ := setupOrchestrator(t)

	_, err := orch.Charge(context.Background(), "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10))
	if !errors.Is(err, store.ErrNoTradingWallet) {
		t.Errorf("Expected ErrNoTradingWallet, got: %v", err)
	}
}

func TestCharge_DuplicateOperationRejected(t *testing.T) {
	orch, svc, oracle := setupOrchestrator(t)
	ctx := context.Background()
	connectWallet(t, svc, oracle, "user1", "5")

	if _, err := orch.Charge(ctx, "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("First charge failed: %v", err)
	}

	_, err := orch.Charge(ctx, "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10))
	if !errors.Is(err, store.ErrDuplicateOperation) {
		t.Errorf("Expected ErrDuplicateOperation, got: %v", err)
	}

	// The duplicate moved no funds
	if len(oracle.transfers) != 1 {
		t.Errorf("Expected 1 transfer total, got %d", len(oracle.transfers))
	}
}

func TestCharge_ChainRejectionFailsEntryAndAllowsRetry(t *testing.T) {
	orch, svc, oracle := setupOrchestrator(t)
	ctx := context.Background()
	connectWallet(t, svc, oracle, "user1", "5")

	oracle.rejectTransfer = true
	_, err := orch.Charge(ctx, "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10))
	if !errors.Is(err, ErrChargeFailed) {
		t.Fatalf("Expected ErrChargeFailed, got: %v", err)
	}

	entries, err := svc.History(ctx, "user1", 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != models.EntryFailed {
		t.Fatalf("Expected one failed entry, got %+v", entries)
	}

	// Failure released the idempotency key
	oracle.rejectTransfer = false
	if _, err := orch.Charge(ctx, "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10)); err != nil {
		t.Errorf("Retry after failure should succeed, got: %v", err)
	}
}

func TestCharge_IndeterminateLeavesEntryPending(t *testing.T) {
	orch, svc, oracle := setupOrchestrator(t)
	ctx := context.Background()
	connectWallet(t, svc, oracle, "user1", "5")

	oracle.indeterminateTransfer = true
	_, err := orch.Charge(ctx, "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10))
	if !errors.Is(err, ErrChargeIndeterminate) {
		t.Fatalf("Expected ErrChargeIndeterminate, got: %v", err)
	}

	entries, err := svc.History(ctx, "user1", 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != models.EntryPending {
		t.Fatalf("Expected one pending entry, got %+v", entries)
	}
	if entries[0].ChainTxRef == "" {
		t.Error("Expected the client-side signature to be recorded for reconciliation")
	}

	// While pending, the operation id is still held: no accidental double charge
	oracle.indeterminateTransfer = false
	_, err = orch.Charge(ctx, "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10))
	if !errors.Is(err, store.ErrDuplicateOperation) {
		t.Errorf("Expected ErrDuplicateOperation while pending, got: %v", err)
	}
}

func TestCharge_ZeroFeeSkipsProtocol(t *testing.T) {
	orch, svc, _ := setupOrchestrator(t)
	ctx := context.Background()

	// Free-tier subscription price is zero: no wallet needed, no entry written
	result, err := orch.Charge(ctx, "user1", models.ChargeSubscriptionFee, "sub-1", decimal.Zero)
	if err != nil {
		t.Fatalf("Charge failed: %v", err)
	}
	if !result.FeeCharged.IsZero() {
		t.Errorf("Expected zero fee, got %s", result.FeeCharged.String())
	}

	entries, err := svc.History(ctx, "user1", 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no ledger entries for a zero fee, got %d", len(entries))
	}
}

func TestCharge_ConcurrentSameUserCannotOverdraw(t *testing.T) {
	orch, svc, oracle := setupOrchestrator(t)
	ctx := context.Background()
	// Enough for one 0.01 wallet-creation fee, not two
	connectWallet(t, svc, oracle, "user1", "0.015")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orch.Charge(ctx, "user1", models.ChargeWalletCreation,
				fmt.Sprintf("create-%d", i), decimal.Zero)
		}(i)
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range errs {
		var insufficientErr *InsufficientBalanceError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &insufficientErr):
			insufficient++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Errorf("Expected exactly one success and one rejection, got %d/%d", succeeded, insufficient)
	}
	if len(oracle.transfers) != 1 {
		t.Errorf("Expected exactly 1 transfer, got %d", len(oracle.transfers))
	}
}

func TestReconciler_ConfirmsLandedTransfer(t *testing.T) {
	orch, svc, oracle := setupOrchestrator(t)
	ctx := context.Background()
	connectWallet(t, svc, oracle, "user1", "5")

	oracle.indeterminateConfirm = true
	_, err := orch.Charge(ctx, "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10))
	if !errors.Is(err, ErrChargeIndeterminate) {
		t.Fatalf("Expected ErrChargeIndeterminate, got: %v", err)
	}

	// The transfer actually landed; the reconciler finds it confirmed
	reconciler := NewReconciler(svc, oracle, 0)
	if err := reconciler.ResolvePending(ctx); err != nil {
		t.Fatalf("ResolvePending failed: %v", err)
	}

	entries, err := svc.History(ctx, "user1", 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != models.EntryConfirmed {
		t.Errorf("Expected the entry confirmed after reconciliation, got %+v", entries)
	}
}

func TestReconciler_FailsUnknownTransaction(t *testing.T) {
	orch, svc, oracle := setupOrchestrator(t)
	ctx := context.Background()
	connectWallet(t, svc, oracle, "user1", "5")

	oracle.indeterminateTransfer = true
	_, err := orch.Charge(ctx, "user1", models.ChargeTradeFee, "trade-1", decimal.NewFromInt(10))
	if !errors.Is(err, ErrChargeIndeterminate) {
		t.Fatalf("Expected ErrChargeIndeterminate, got: %v", err)
	}

	// The chain never saw the transaction: the reconciler closes it out
	reconciler := NewReconciler(svc, oracle, 0)
	if err := reconciler.ResolvePending(ctx); err != nil {
		t.Fatalf("ResolvePending failed: %v", err)
	}

	entries, err := svc.History(ctx, "user1", 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != models.EntryFailed {
		t.Errorf("Expected the entry failed after reconciliation, got %+v", entries)
	}
}

func TestReconciler_FailsEntryNeverSubmitted(t *testing.T) {
	_, svc, oracle := setupOrchestrator(t)
	ctx := context.Background()

	// Simulates a crash between Begin and Transfer: pending, no tx ref
	entry, err := svc.Begin(ctx, store.BeginParams{
		UserId:      "user1",
		ChargeType:  models.ChargeTradeFee,
		OperationId: "trade-1",
		BaseAmount:  decimal.NewFromInt(10),
		FeeAmount:   decimal.RequireFromString("0.01"),
	})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	reconciler := NewReconciler(svc, oracle, 0)
	if err := reconciler.ResolvePending(ctx); err != nil {
		t.Fatalf("ResolvePending failed: %v", err)
	}

	got, err := svc.GetLedgerEntry(ctx, entry.Id)
	if err != nil {
		t.Fatalf("GetLedgerEntry failed: %v", err)
	}
	if got.Status != models.EntryFailed {
		t.Errorf("Expected failed status, got %s", got.Status)
	}
	if got.FailureReason != "transfer never submitted" {
		t.Errorf("Unexpected failure reason: %s", got.FailureReason)
	}
}

func TestUserLocks_SerializesSameUser(t *testing.T) {
	locks := NewUserLocks()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("user1")
			counter++
			locks.Unlock("user1")
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("Expected 50 serialized increments, got %d", counter)
	}
}
