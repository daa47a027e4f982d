// Package gateway verifies payments against the Midtrans core API.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/config"
	"github.com/segyhp/emi-engine/internal/domain"
	customError "github.com/segyhp/emi-engine/pkg/errors"
)

type transactionChecker interface {
	CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

type MidtransVerifier struct {
	client  transactionChecker
	timeout time.Duration
	logger  *zap.Logger
}

func NewMidtransVerifier(cfg config.GatewayConfig, logger *zap.Logger) *MidtransVerifier {
	env := midtrans.Sandbox
	if cfg.MidtransIsProduction {
		env = midtrans.Production
	}

	var c coreapi.Client
	c.New(cfg.MidtransServerKey, env)

	return newMidtransVerifier(&c, cfg.Timeout, logger)
}

func newMidtransVerifier(client transactionChecker, timeout time.Duration, logger *zap.Logger) *MidtransVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MidtransVerifier{client: client, timeout: timeout, logger: logger}
}

// VerifyPaymentStatus asks the gateway for the final status of a transaction.
// Transport errors and statuses it cannot classify are reported as verification failures.
func (v *MidtransVerifier) VerifyPaymentStatus(ctx context.Context, transactionID string) (*domain.PaymentVerification, error) {
	if err := ctx.Err(); err != nil {
		return nil, customError.WrapUpstreamPaymentVerificationFailed(transactionID, err)
	}

	resp, err := v.check(ctx, transactionID)
	if err != nil {
		return nil, customError.WrapUpstreamPaymentVerificationFailed(transactionID, err)
	}
	if resp == nil {
		return nil, customError.WrapUpstreamPaymentVerificationFailed(transactionID, fmt.Errorf("empty response"))
	}

	verification := &domain.PaymentVerification{
		TransactionID: transactionID,
		Status:        resp.TransactionStatus,
	}

	switch classify(resp.TransactionStatus, resp.FraudStatus) {
	case outcomeSucceeded:
		verification.Succeeded = true
	case outcomePending:
		verification.Pending = true
	case outcomeFailed:
	default:
		return nil, customError.WrapUpstreamPaymentVerificationFailed(transactionID,
			fmt.Errorf("unrecognised transaction status %q", resp.TransactionStatus))
	}

	if resp.GrossAmount != "" {
		amount, err := decimal.NewFromString(resp.GrossAmount)
		if err != nil {
			return nil, customError.WrapUpstreamPaymentVerificationFailed(transactionID,
				fmt.Errorf("invalid gross amount %q: %w", resp.GrossAmount, err))
		}
		verification.Amount = amount
	}

	return verification, nil
}

type checkResult struct {
	resp *coreapi.TransactionStatusResponse
	merr *midtrans.Error
}

// check bounds the status call by ctx and the configured timeout.
// The client takes no context, so an abandoned call finishes in the background.
func (v *MidtransVerifier) check(ctx context.Context, transactionID string) (*coreapi.TransactionStatusResponse, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	done := make(chan checkResult, 1)
	go func() {
		resp, merr := v.client.CheckTransaction(transactionID)
		done <- checkResult{resp: resp, merr: merr}
	}()

	select {
	case <-ctx.Done():
		v.logger.Warn("midtrans status check abandoned",
			zap.String("transaction_id", transactionID),
			zap.Error(ctx.Err()))
		return nil, ctx.Err()
	case r := <-done:
		if r.merr != nil {
			v.logger.Warn("midtrans status check failed",
				zap.String("transaction_id", transactionID),
				zap.Int("status_code", r.merr.StatusCode),
				zap.String("message", r.merr.Message))
			return nil, r.merr
		}
		return r.resp, nil
	}
}

type outcome int

const (
	outcomeUnknown outcome = iota
	outcomeSucceeded
	outcomePending
	outcomeFailed
)

func classify(transactionStatus, fraudStatus string) outcome {
	switch transactionStatus {
	case "settlement":
		return outcomeSucceeded
	case "capture":
		if fraudStatus == "" || fraudStatus == "accept" {
			return outcomeSucceeded
		}
		return outcomePending
	case "pending", "authorize":
		return outcomePending
	case "deny", "cancel", "expire", "failure", "refund", "partial_refund", "chargeback":
		return outcomeFailed
	}
	return outcomeUnknown
}
