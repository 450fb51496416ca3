package subscription

import (
	"context"
	"fmt"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle payment provider.
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY,required"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements PaymentProvider on top of Paddle transactions.
// The subscription's payment method reference must hold the Paddle price
// ID captured at the original purchase; each renewal creates a new
// transaction against that price.
type PaddleProvider struct {
	client *paddle.SDK
	config PaddleConfig
}

// NewPaddleProvider creates a new Paddle payment provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, config.Environment)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client: client,
		config: config,
	}, nil
}

// AttemptRenewalPayment charges a renewal through Paddle. A declined or
// failed charge is reported through ChargeResult, not as an error, so the
// caller's retry/suspend path stays uniform across providers.
func (p *PaddleProvider) AttemptRenewalPayment(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if req.PaymentMethod == "" || req.PaymentMethod == "default" {
		return ChargeResult{}, ErrMissingPriceID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PaymentMethod,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"subscription_id": req.SubscriptionID.String(),
			"user_id":         req.UserID.String(),
			"renewal":         "true",
		},
	}

	if _, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq); err != nil {
		// Provider rejections are expected business outcomes; the context
		// error path (timeout, cancellation) is the only hard failure.
		if ctx.Err() != nil {
			return ChargeResult{}, ctx.Err()
		}
		return ChargeResult{Reason: err.Error()}, nil
	}

	return ChargeResult{Success: true}, nil
}
