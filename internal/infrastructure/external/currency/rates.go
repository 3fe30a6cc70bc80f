package currency

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RatesClient implements port.CurrencyConverter against exchangerate-api
type RatesClient struct {
	baseURL string
	client  *jsonClient
	logger  *zap.Logger
}

type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// NewRatesClient creates a converter using cfg.RatesBaseURL
func NewRatesClient(cfg Config, logger *zap.Logger) *RatesClient {
	return &RatesClient{
		baseURL: strings.TrimRight(cfg.RatesBaseURL, "/"),
		client:  newJSONClient("exchange-rates", cfg, logger),
		logger:  logger,
	}
}

// Convert fetches the rate table based on to and divides amount by the rate of from
func (c *RatesClient) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return amount, nil
	}

	var body ratesResponse
	if err := c.client.getJSON(ctx, c.baseURL+"/"+url.PathEscape(to), &body); err != nil {
		if errors.Is(err, errNotFound) {
			return decimal.Zero, fmt.Errorf("%w: %s", port.ErrUnsupportedCurrency, to)
		}
		return decimal.Zero, fmt.Errorf("fetch rates for %s: %w", to, err)
	}

	rate, ok := body.Rates[from]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", port.ErrUnsupportedCurrency, from)
	}

	converted := amount.Div(rate)
	c.logger.Debug("Converted amount",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("rate", rate.String()),
		zap.String("converted", converted.String()))
	return converted, nil
}
