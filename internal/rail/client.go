package rail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mantraapp1/23-oct-mantra-sub003/internal/config"
	"github.com/mantraapp1/23-oct-mantra-sub003/internal/models"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/validation"
)

const (
	// maxAttempts bounds submissions of one payment, first try included.
	maxAttempts = 3
	// initialBackoff is the delay before the second attempt; it doubles
	// after every further failure.
	initialBackoff = 500 * time.Millisecond

	requestTimeout = 30 * time.Second
)

// Client is the payment rail used by settlement runs. It validates
// destinations offline, checks funding headroom before submitting and retries
// transient gateway failures with the same idempotency key, so the gateway
// can collapse duplicates.
type Client struct {
	logger *logger.Logger
	config *config.Config
	gw     *gateway

	maxAttempts int
	backoff     time.Duration
}

// NewClient creates a new rail Client instance.
func NewClient(config *config.Config, logger *logger.Logger) *Client {
	return &Client{
		logger: logger,
		config: config,
		gw: &gateway{
			baseURL: strings.TrimRight(config.RailGatewayURL, "/"),
			token:   config.RailAPIToken,
			client: &http.Client{
				Timeout: requestTimeout,
			},
		},
		maxAttempts: maxAttempts,
		backoff:     initialBackoff,
	}
}

// VerifyNetwork asserts that the gateway serves the configured network by
// loading the funding account. Called once at startup so a production funding
// address can never be pointed at a test gateway or vice versa.
func (c *Client) VerifyNetwork(ctx context.Context) error {
	account, err := c.getAccount(ctx, c.config.FundingAddress)
	if err != nil {
		return fmt.Errorf("failed to load funding account: %w", err)
	}
	if account.Network != c.config.RailNetwork {
		return fmt.Errorf("gateway serves the %s network, configured for %s",
			account.Network, c.config.RailNetwork)
	}
	return nil
}

// ValidateAddress checks an address offline: format, checksum and that it
// belongs to the configured network.
func (c *Client) ValidateAddress(addr string) error {
	if err := validation.ValidateAddress(addr); err != nil {
		return err
	}
	network, err := validation.AddressNetwork(addr)
	if err != nil {
		return err
	}
	if network != c.config.RailNetwork {
		return fmt.Errorf("address belongs to the %s network, configured for %s",
			network, c.config.RailNetwork)
	}
	return nil
}

// AccountExists reports whether the destination account is known to the rail.
// A missing account is a clean false, not an error.
func (c *Client) AccountExists(ctx context.Context, addr string) (bool, error) {
	_, err := c.getAccount(ctx, addr)
	if err != nil {
		var railErr *Error
		if errors.As(err, &railErr) && railErr.Kind == KindNoDestinationAccount {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetBalance returns the rail balance of an account.
func (c *Client) GetBalance(ctx context.Context, addr string) (float64, error) {
	account, err := c.getAccount(ctx, addr)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// SubmitPayment validates, preflights and submits one payment. Fatal gateway
// errors surface after a single attempt; transient ones are retried with
// doubling backoff until the attempt budget or the context runs out.
func (c *Client) SubmitPayment(ctx context.Context, p models.Payment) (*models.PaymentReceipt, error) {
	if err := c.ValidateAddress(p.Destination); err != nil {
		return nil, &Error{Kind: KindBadDestination, Message: err.Error()}
	}
	if len(p.Memo) > models.MaxMemoBytes {
		return nil, &Error{Kind: KindBadRequest,
			Message: fmt.Sprintf("memo is %d bytes, limit is %d", len(p.Memo), models.MaxMemoBytes)}
	}
	if p.Amount <= 0 {
		return nil, &Error{Kind: KindBadRequest,
			Message: fmt.Sprintf("payment amount must be positive, got %v", p.Amount)}
	}

	funding, err := c.GetBalance(ctx, c.config.FundingAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to check funding balance: %w", err)
	}
	if need := p.Amount + c.config.FeeReserve; funding < need {
		return nil, &Error{Kind: KindInsufficientFunds,
			Message: fmt.Sprintf("funding account holds %s, payment needs %s",
				models.FormatAmount(funding), models.FormatAmount(need))}
	}

	request := paymentRequest{
		Source:      c.config.FundingAddress,
		Destination: validation.NormalizeAddress(p.Destination),
		Amount:      p.Amount,
		Memo:        p.Memo,
	}

	var result *paymentResult
	attempts, err := c.retry(ctx, "payment", func() error {
		var submitErr error
		result, submitErr = c.gw.submitPayment(ctx, p.IdempotencyKey, request)
		return submitErr
	})
	if err != nil {
		return nil, fmt.Errorf("payment not accepted after %d attempts: %w", attempts, err)
	}

	return &models.PaymentReceipt{
		ExternalTxID: result.TxID,
		FeeCharged:   result.Fee,
		Attempts:     attempts,
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

// getAccount reads an account with the same retry policy as submissions,
// except that a missing account is final immediately.
func (c *Client) getAccount(ctx context.Context, addr string) (*accountInfo, error) {
	var account *accountInfo
	_, err := c.retry(ctx, "account lookup", func() error {
		var getErr error
		account, getErr = c.gw.getAccount(ctx, validation.NormalizeAddress(addr))
		return getErr
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// retry runs fn until it succeeds, fails fatally or the attempt budget is
// spent. It returns how many attempts ran along with the last error.
func (c *Client) retry(ctx context.Context, op string, fn func() error) (int, error) {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return attempt, nil
		}
		if !IsRetryable(err) || attempt == c.maxAttempts {
			return attempt, err
		}

		delay := c.backoff << (attempt - 1)
		c.logger.Warnw("retrying rail "+op,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}
}

var _ models.Rail = (*Client)(nil)
