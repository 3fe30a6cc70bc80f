package currency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/garyjia/expense-approval/internal/application/port"
	"go.uber.org/zap"
)

// CountriesClient implements port.CountryResolver against restcountries
type CountriesClient struct {
	baseURL string
	client  *jsonClient
	logger  *zap.Logger
}

type countryResponse struct {
	// Currencies is kept raw so the first listed code can be picked in document order
	Currencies json.RawMessage `json:"currencies"`
}

// NewCountriesClient creates a resolver using cfg.CountriesBaseURL
func NewCountriesClient(cfg Config, logger *zap.Logger) *CountriesClient {
	return &CountriesClient{
		baseURL: strings.TrimRight(cfg.CountriesBaseURL, "/"),
		client:  newJSONClient("rest-countries", cfg, logger),
		logger:  logger,
	}
}

// CurrencyForCountry returns the first currency listed for the best matching country
func (c *CountriesClient) CurrencyForCountry(ctx context.Context, country string) (string, error) {
	country = strings.TrimSpace(country)
	if country == "" {
		return "", fmt.Errorf("%w: empty name", port.ErrUnknownCountry)
	}

	endpoint := fmt.Sprintf("%s/name/%s?fields=name,currencies", c.baseURL, url.PathEscape(country))

	var body []countryResponse
	if err := c.client.getJSON(ctx, endpoint, &body); err != nil {
		if errors.Is(err, errNotFound) {
			return "", fmt.Errorf("%w: %s", port.ErrUnknownCountry, country)
		}
		return "", fmt.Errorf("lookup country %s: %w", country, err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("%w: %s", port.ErrUnknownCountry, country)
	}

	code, err := firstKey(body[0].Currencies)
	if err != nil {
		return "", fmt.Errorf("decode currencies of %s: %w", country, err)
	}
	if code == "" {
		return "", fmt.Errorf("%w: %s has no currency", port.ErrUnknownCountry, country)
	}

	c.logger.Info("Resolved country currency", zap.String("country", country), zap.String("currency", code))
	return code, nil
}

// firstKey returns the first key of a JSON object, or "" for an empty or missing object
func firstKey(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", fmt.Errorf("expected object, got %v", tok)
	}
	if !dec.More() {
		return "", nil
	}

	tok, err = dec.Token()
	if err != nil {
		return "", err
	}
	key, _ := tok.(string)
	return key, nil
}
