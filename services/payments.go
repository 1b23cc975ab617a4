package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// ErrPaymentsNotConfigured is raised on first access to the payment service
// when the processor key is missing. Construction is deferred so that
// routes which never touch payments do not pay for, or fail on, the
// configuration.
var ErrPaymentsNotConfigured = errors.New("payment processor key not configured")

// PaddleConfig holds payment processor configuration.
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// Payments creates hosted checkout sessions with the payment processor.
type Payments struct {
	client *paddle.SDK
}

func newPayments(cfg PaddleConfig) (*Payments, error) {
	if cfg.APIKey == "" {
		return nil, ErrPaymentsNotConfigured
	}

	var client *paddle.SDK
	var err error
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	default:
		client, err = paddle.New(cfg.APIKey)
	}
	if err != nil {
		return nil, fmt.Errorf("create paddle client: %w", err)
	}

	return &Payments{client: client}, nil
}

// CheckoutLink creates a hosted checkout transaction for a catalog price
// and returns the URL the buyer completes payment at.
func (s *Payments) CheckoutLink(ctx context.Context, priceID string, buyerID, contentID uuid.UUID) (string, error) {
	if priceID == "" {
		return "", errors.New("price id is required")
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  priceID,
		Quantity: 1,
	})

	transaction, err := s.client.TransactionsClient.CreateTransaction(ctx, &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"buyer_id":   buyerID.String(),
			"content_id": contentID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create paddle transaction: %w", err)
	}

	if transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return "", errors.New("no checkout URL returned from paddle")
	}
	return *transaction.Checkout.URL, nil
}
