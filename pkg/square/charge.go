package square

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/tidyops/tidyops-backend/pkg/errors"
)

// ChargeOutcome is the normalized result of a card-on-file payment.
type ChargeOutcome string

const (
	ChargeOutcomeSucceeded      ChargeOutcome = "succeeded"
	ChargeOutcomeRequiresAction ChargeOutcome = "requires_action"
	ChargeOutcomeDeclined       ChargeOutcome = "declined"
	ChargeOutcomeUnknown        ChargeOutcome = "unknown"
)

// ChargeResult collapses the gateway payment response into the states the
// orchestrator acts on. Declines surface here as a result, not an error, so
// callers can record the outcome without unwrapping.
type ChargeResult struct {
	Outcome   ChargeOutcome
	PaymentID string
	AuthLink  string
	ErrorText string
}

// ChargeCard runs a payment against a stored card and normalizes the outcome.
// Transport and gateway failures are returned as errors; a decline is a
// legitimate ChargeResult.
func (c *Client) ChargeCard(ctx context.Context, params PaymentCreateParams) (*ChargeResult, error) {
	payment, err := c.CreatePayment(ctx, params)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeDeclined {
			return &ChargeResult{
				Outcome:   ChargeOutcomeDeclined,
				ErrorText: typed.Message(),
			}, nil
		}
		return nil, err
	}
	return c.chargeResultFromPayment(payment), nil
}

func (c *Client) chargeResultFromPayment(payment *sq.Payment) *ChargeResult {
	result := &ChargeResult{PaymentID: stringValue(payment.GetID())}
	switch strings.ToUpper(stringValue(payment.GetStatus())) {
	case "COMPLETED", "APPROVED":
		result.Outcome = ChargeOutcomeSucceeded
	case "PENDING":
		result.Outcome = ChargeOutcomeRequiresAction
		result.AuthLink = c.hostedAuthLink(result.PaymentID)
	case "FAILED", "CANCELED":
		result.Outcome = ChargeOutcomeDeclined
	default:
		result.Outcome = ChargeOutcomeUnknown
	}
	return result
}

// hostedAuthLink points the buyer at the gateway's hosted verification page
// for a payment awaiting step-up authentication.
func (c *Client) hostedAuthLink(paymentID string) string {
	if c == nil || paymentID == "" {
		return ""
	}
	base := c.baseURL
	if base == "" {
		base = baseURLs[sandboxEnv]
	}
	return fmt.Sprintf("%s/payments/%s/verify", base, paymentID)
}
