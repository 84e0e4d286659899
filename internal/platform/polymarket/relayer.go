package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Relayer transaction states.
const (
	relayerStateConfirmed = "STATE_CONFIRMED"
	relayerStateFailed    = "STATE_FAILED"
	relayerStateInvalid   = "STATE_INVALID"
)

// RelayerClient submits gasless contract calls through the Polymarket
// builder relayer. The relayer executes them from the proxy wallet, so the
// wallet needs no MATIC for gas.
type RelayerClient struct {
	rest           restClient
	creds          crypto.APICredentials
	from           common.Address
	confirmTimeout time.Duration
	pollInterval   time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// RelayerConfig configures a RelayerClient.
type RelayerConfig struct {
	BaseURL        string
	Timeout        time.Duration
	ConfirmTimeout time.Duration
	// From is the proxy wallet the relayer executes from.
	From    common.Address
	Builder crypto.APICredentials
}

// NewRelayerClient creates a relayer client authenticated with builder
// credentials.
func NewRelayerClient(cfg RelayerConfig, logger *slog.Logger) *RelayerClient {
	confirm := cfg.ConfirmTimeout
	if confirm <= 0 {
		confirm = 120 * time.Second
	}
	return &RelayerClient{
		rest:           newRESTClient(cfg.BaseURL, cfg.Timeout),
		creds:          cfg.Builder,
		from:           cfg.From,
		confirmTimeout: confirm,
		pollInterval:   2 * time.Second,
		logger:         logger.With(slog.String("component", "relayer")),
		now:            time.Now,
	}
}

// Execute submits a single call to contract `to` and blocks until the relayer
// reports it confirmed, failed, or the confirm timeout passes.
func (r *RelayerClient) Execute(ctx context.Context, to common.Address, data []byte, description string) (domain.SettlementResult, error) {
	if r.creds.Empty() {
		return domain.SettlementResult{}, fmt.Errorf("polymarket/relayer: %w: builder credentials required", domain.ErrUnauthorized)
	}
	body, err := json.Marshal(relayerSubmitRequest{
		From: r.from.Hex(),
		Transactions: []relayerTx{{
			To:    to.Hex(),
			Data:  hexutil.Encode(data),
			Value: "0",
		}},
		Description: description,
		Metadata:    uuid.NewString(),
	})
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("polymarket/relayer: marshal submit: %w", err)
	}
	headers := r.creds.BuilderHeadersAt(http.MethodPost, "/submit", string(body), r.now().UnixMilli())
	respBody, err := r.rest.do(ctx, http.MethodPost, "/submit", body, headers)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("polymarket/relayer: submit %s: %w", description, err)
	}
	var submitted relayerSubmitResponse
	if err := json.Unmarshal(respBody, &submitted); err != nil {
		return domain.SettlementResult{}, fmt.Errorf("polymarket/relayer: decode submit: %w", err)
	}
	if submitted.TransactionID == "" {
		return domain.SettlementResult{}, fmt.Errorf("polymarket/relayer: submit %s: missing transaction id", description)
	}
	r.logger.Info("relayer transaction submitted",
		slog.String("description", description),
		slog.String("transaction_id", submitted.TransactionID),
	)
	return r.wait(ctx, submitted.TransactionID)
}

// wait polls /transaction/{id} until a terminal state. Transient poll errors
// are logged and retried.
func (r *RelayerClient) wait(ctx context.Context, txID string) (domain.SettlementResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		status, err := r.status(ctx, txID)
		switch {
		case err != nil:
			r.logger.Warn("relayer status check failed", slog.String("transaction_id", txID), slog.String("error", err.Error()))
		case status.State == relayerStateConfirmed:
			return domain.SettlementResult{
				TransactionID:   txID,
				TransactionHash: status.TransactionHash,
				State:           status.State,
			}, nil
		case status.State == relayerStateFailed || status.State == relayerStateInvalid:
			return domain.SettlementResult{TransactionID: txID, State: status.State},
				fmt.Errorf("polymarket/relayer: %w: %s %s", domain.ErrSettlementFailed, status.State, status.ErrorMsg)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return domain.SettlementResult{TransactionID: txID},
					fmt.Errorf("polymarket/relayer: %w: confirmation timeout for %s", domain.ErrSettlementFailed, txID)
			}
			return domain.SettlementResult{TransactionID: txID}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *RelayerClient) status(ctx context.Context, txID string) (relayerTxStatus, error) {
	body, err := r.rest.do(ctx, http.MethodGet, "/transaction/"+url.PathEscape(txID), nil, nil)
	if err != nil {
		return relayerTxStatus{}, err
	}
	var st relayerTxStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return relayerTxStatus{}, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}
