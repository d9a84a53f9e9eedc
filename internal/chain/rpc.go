package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"solana-fee-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Compile-time check: *RPCService must satisfy Oracle.
var _ Oracle = (*RPCService)(nil)

const lamportDecimals = 9

// RPCService is the JSON-RPC Oracle implementation against a Solana node.
type RPCService struct {
	url        string
	httpClient http.Client
	signer     Signer
	cfg        models.ChainConfig
}

func NewRPCService(cfg models.ChainConfig, signer Signer) (*RPCService, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain RPC URL cannot be empty")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &RPCService{
		url:        cfg.RPCURL,
		httpClient: httpClient,
		signer:     signer,
		cfg:        cfg,
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			DualStack: true,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	Id      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcError is a JSON-RPC error response from the node. Its presence means
// the node received, parsed, and refused the request, as opposed to a
// transport failure where the request's fate is unknown.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (s *RPCService) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{Jsonrpc: "2.0", Id: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("unable to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unable to create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc call %s failed: %w", method, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc call %s returned status %d", method, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("unable to read rpc response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("unable to unmarshal rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unable to unmarshal rpc result: %w", err)
		}
	}
	return nil
}

// GetBalance queries the address balance and converts lamports to token units.
func (s *RPCService) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BalanceTimeout)
	defer cancel()

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := s.call(ctx, "getBalance", []any{address}, &result); err != nil {
		return decimal.Zero, fmt.Errorf("unable to get balance for %s: %w", address, err)
	}

	balance := decimal.NewFromUint64(result.Value).Shift(-lamportDecimals)
	zap.L().Debug("Fetched chain balance",
		zap.String("address", address),
		zap.String("balance", balance.String()))
	return balance, nil
}

// Transfer signs a transfer with the user's key and submits it. The
// client-side signature is returned even when the submission outcome is
// unknown, so callers can persist it for reconciliation.
func (s *RPCService) Transfer(ctx context.Context, params TransferParams) (string, error) {
	blockhash, err := s.latestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("unable to fetch recent blockhash: %w", err)
	}

	lamports := params.Amount.Shift(lamportDecimals).IntPart()
	if lamports <= 0 {
		return "", fmt.Errorf("transfer amount %s is below one lamport", params.Amount.String())
	}

	signed, err := s.signer.SignTransfer(ctx, SignParams{
		EncryptedKey:    params.EncryptedKey,
		FromAddress:     params.FromAddress,
		ToAddress:       params.ToAddress,
		Lamports:        uint64(lamports),
		RecentBlockhash: blockhash,
	})
	if err != nil {
		return "", fmt.Errorf("unable to sign transfer: %w", err)
	}

	zap.L().Info("Submitting transfer",
		zap.String("from", params.FromAddress),
		zap.String("to", params.ToAddress),
		zap.String("amount", params.Amount.String()),
		zap.String("signature", signed.Signature))

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.TransferTimeout)
	defer cancel()

	var signature string
	err = s.call(sendCtx, "sendTransaction", []any{
		signed.WireData,
		map[string]any{"encoding": "base64"},
	}, &signature)
	if err != nil {
		// Only a node-reported error is a definitive rejection. A transport
		// failure (timeout, connection reset, unreadable response) leaves the
		// submission's fate unknown: the node may have executed the transfer,
		// so the charge must stay pending for reconciliation. The client-side
		// signature is handed back either way.
		var nodeErr *rpcError
		if errors.As(err, &nodeErr) {
			return signed.Signature, fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
		return signed.Signature, fmt.Errorf("%w: submission of %s: %v",
			ErrTransferIndeterminate, signed.Signature, err)
	}

	return signature, nil
}

// AwaitConfirmation polls signature status until finality or the
// confirmation window closes.
func (s *RPCService) AwaitConfirmation(ctx context.Context, signature string) (ConfirmationStatus, error) {
	return awaitConfirmation(ctx, signature, s.cfg.ConfirmTimeout, s.cfg.ConfirmPollInterval, s.CheckTransaction)
}

// CheckTransaction returns the current finality verdict for a signature.
func (s *RPCService) CheckTransaction(ctx context.Context, signature string) (ConfirmationStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BalanceTimeout)
	defer cancel()

	var result struct {
		Value []*struct {
			ConfirmationStatus string          `json:"confirmationStatus"`
			Err                json.RawMessage `json:"err"`
		} `json:"value"`
	}
	err := s.call(ctx, "getSignatureStatuses", []any{
		[]string{signature},
		map[string]any{"searchTransactionHistory": true},
	}, &result)
	if err != nil {
		return StatusIndeterminate, err
	}

	if len(result.Value) == 0 || result.Value[0] == nil {
		return StatusIndeterminate, fmt.Errorf("%w: %s", ErrTransactionUnknown, signature)
	}

	status := result.Value[0]
	if status.Err != nil && string(status.Err) != "null" {
		return StatusFailed, nil
	}
	switch status.ConfirmationStatus {
	case "confirmed", "finalized":
		return StatusConfirmed, nil
	default:
		return StatusIndeterminate, nil
	}
}

func (s *RPCService) latestBlockhash(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BalanceTimeout)
	defer cancel()

	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := s.call(ctx, "getLatestBlockhash", nil, &result); err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}
