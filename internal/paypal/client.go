package paypal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/config"
	"go.uber.org/zap"
)

// tokenSafety renews the OAuth token this long before its stated expiry.
const tokenSafety = 30 * time.Second

// Transaction is the matched subset of a PayPal reporting transaction.
type Transaction struct {
	TransactionID string
	AmountCents   int64
	CurrencyCode  string
	PayerName     string
	CompletedAt   time.Time
	Raw           json.RawMessage
}

// Client polls the PayPal reporting API for completed transactions that
// reference a kiosk payment. It holds its own token cache; a zero client is
// not usable, construct it with NewClient.
type Client struct {
	httpClient *http.Client
	log        *zap.Logger
	clock      clock.Clock

	apiBase      string
	clientID     string
	clientSecret string
	lookback     time.Duration

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg config.PayPalConfig, log *zap.Logger, clk clock.Clock) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 20 * time.Second},
		log:          log.Named("paypal.client"),
		clock:        clk,
		apiBase:      strings.TrimRight(cfg.APIBase, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		lookback:     cfg.ReportingLookback,
	}
}

// Configured reports whether API credentials are present. An unconfigured
// client makes the poller a no-op instead of an error source.
func (c *Client) Configured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.clock.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("paypal token request failed: %s: %s", resp.Status, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("paypal token response missing access_token")
	}

	c.accessToken = payload.AccessToken
	c.tokenExpiry = c.clock.Now().
		Add(time.Duration(payload.ExpiresIn) * time.Second).
		Add(-tokenSafety)
	return c.accessToken, nil
}

type reportingResponse struct {
	TransactionDetails []struct {
		TransactionInfo struct {
			TransactionID     string `json:"transaction_id"`
			TransactionStatus string `json:"transaction_status"`
			InvoiceID         string `json:"invoice_id"`
			CustomField       string `json:"custom_field"`
			TransactionAmount struct {
				CurrencyCode string `json:"currency_code"`
				Value        string `json:"value"`
			} `json:"transaction_amount"`
			TransactionInitiationDate string `json:"transaction_initiation_date"`
		} `json:"transaction_info"`
		PayerInfo struct {
			PayerName struct {
				AlternateFullName string `json:"alternate_full_name"`
				GivenName         string `json:"given_name"`
				Surname           string `json:"surname"`
			} `json:"payer_name"`
		} `json:"payer_info"`
	} `json:"transaction_details"`
}

// FindTransaction searches the reporting API for a completed transaction
// whose invoice id equals referenceCode or whose custom field carries the
// marker. A nil transaction with nil error means nothing matched yet; the
// reporting API lags settlements by a few minutes.
func (c *Client) FindTransaction(ctx context.Context, referenceCode, marker string) (*Transaction, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now().UTC()
	params := url.Values{
		"start_date": {now.Add(-c.lookback).Format(time.RFC3339)},
		"end_date":   {now.Format(time.RFC3339)},
		"fields":     {"all"},
		"page_size":  {"100"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.apiBase+"/v1/reporting/transactions?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 422 means the requested window is not reportable yet.
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("paypal reporting request failed: %s: %s", resp.Status, body)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var payload reportingResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	for _, detail := range payload.TransactionDetails {
		info := detail.TransactionInfo
		if !settledStatus(info.TransactionStatus) {
			continue
		}
		matched := info.InvoiceID == referenceCode ||
			strings.Contains(info.CustomField, marker)
		if !matched {
			continue
		}

		amountCents, err := parseAmountCents(info.TransactionAmount.Value)
		if err != nil {
			c.log.Warn("unparseable transaction amount",
				zap.String("transaction_id", info.TransactionID),
				zap.String("value", info.TransactionAmount.Value),
			)
			continue
		}

		completedAt := now
		if t, err := time.Parse(time.RFC3339, info.TransactionInitiationDate); err == nil {
			completedAt = t.UTC()
		}

		name := detail.PayerInfo.PayerName.AlternateFullName
		if name == "" {
			name = strings.TrimSpace(detail.PayerInfo.PayerName.GivenName + " " + detail.PayerInfo.PayerName.Surname)
		}

		rawDetail, _ := json.Marshal(detail)
		return &Transaction{
			TransactionID: info.TransactionID,
			AmountCents:   amountCents,
			CurrencyCode:  info.TransactionAmount.CurrencyCode,
			PayerName:     name,
			CompletedAt:   completedAt,
			Raw:           rawDetail,
		}, nil
	}
	return nil, nil
}

// settledStatus reports whether a reporting transaction status counts as
// settled money. The API emits the single-letter code "S"; webhook-shaped
// payloads spell out SUCCESS or COMPLETED.
func settledStatus(status string) bool {
	switch strings.ToUpper(status) {
	case "S", "SUCCESS", "COMPLETED":
		return true
	default:
		return false
	}
}

// parseAmountCents converts a decimal amount string like "12.50" to cents
// without going through floats.
func parseAmountCents(value string) (int64, error) {
	value = strings.TrimSpace(value)
	negative := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")

	whole, frac, _ := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	switch len(frac) {
	case 0:
		frac = "00"
	case 1:
		frac += "0"
	case 2:
	default:
		frac = frac[:2]
	}

	euros, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	centPart, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, err
	}

	cents := euros*100 + centPart
	if negative {
		cents = -cents
	}
	return cents, nil
}
