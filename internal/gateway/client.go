// Package gateway implements the payment.Gateway boundary over the payment
// provider's REST API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/pilldrop/commerce-api/internal/domain/payment"
)

// Config holds the gateway client configuration.
type Config struct {
	// BaseURL is the root of the provider's REST API.
	BaseURL string
	// APIKey and APISecret authenticate the token request.
	APIKey    string
	APISecret string
	// Timeout bounds each HTTP call. The orchestrator applies its own
	// deadline on top via context.
	Timeout time.Duration
}

// Client talks to the payment provider. Access tokens are cached until
// shortly before expiry and refreshed on demand.
type Client struct {
	cfg  Config
	http *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ payment.Gateway = (*Client)(nil)

// NewClient creates a gateway Client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// VerifyTransaction fetches the provider's canonical record for txnRef.
// A missing or unsettled transaction maps to payment.ErrPaymentNotFound;
// every transport or protocol failure surfaces as a plain error, which the
// verifier collapses to payment.ErrGatewayUnreachable.
func (c *Client) VerifyTransaction(ctx context.Context, txnRef string) (*payment.GatewayTransaction, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get access token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/payments/"+txnRef, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call gateway")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, payment.ErrPaymentNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("gateway returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	return parseTransaction(body)
}

// parseTransaction decodes the provider's payment envelope:
//
//	{"code":0,"message":null,"response":{"imp_uid":...,"amount":...,
//	 "pay_method":"card","status":"paid","paid_at":1700000000}}
func parseTransaction(body []byte) (*payment.GatewayTransaction, error) {
	var (
		code     int64
		found    bool
		txn      payment.GatewayTransaction
		status   string
		parseErr error
	)

	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			v, err := d.Int64()
			code = v
			return err
		case "response":
			if d.Next() == jx.Null {
				return d.Null()
			}
			found = true
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "imp_uid":
					v, err := d.Str()
					txn.TxnRef = v
					return err
				case "amount":
					n, err := d.Num()
					if err != nil {
						return err
					}
					txn.Amount, parseErr = decimal.NewFromString(n.String())
					return parseErr
				case "pay_method":
					v, err := d.Str()
					txn.Method = v
					return err
				case "status":
					v, err := d.Str()
					status = v
					return err
				case "paid_at":
					v, err := d.Int64()
					txn.SettledAt = time.Unix(v, 0).UTC()
					return err
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode gateway response")
	}

	if code != 0 {
		return nil, errors.Errorf("gateway error code %d", code)
	}
	if !found {
		return nil, payment.ErrPaymentNotFound
	}
	if status != "paid" {
		// Cancelled, failed, or still pending: there is no settled payment
		// to verify against.
		return nil, payment.ErrPaymentNotFound
	}
	return &txn, nil
}

// accessToken returns a cached token or requests a fresh one.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"imp_key":    c.cfg.APIKey,
		"imp_secret": c.cfg.APISecret,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal token request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/users/getToken", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "build token request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "call token endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "read token response")
	}

	token, expiresAt, err := parseToken(body)
	if err != nil {
		return "", err
	}

	c.token = token
	// Refresh a minute early to avoid using a token at the expiry edge.
	c.tokenExpiry = expiresAt.Add(-time.Minute)
	return c.token, nil
}

// parseToken decodes {"code":0,"response":{"access_token":"...","expired_at":1700003600}}.
func parseToken(body []byte) (string, time.Time, error) {
	var (
		token     string
		expiresAt time.Time
	)

	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "response":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "access_token":
					v, err := d.Str()
					token = v
					return err
				case "expired_at":
					v, err := d.Int64()
					expiresAt = time.Unix(v, 0).UTC()
					return err
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return "", time.Time{}, errors.Wrap(err, "decode token response")
	}

	if token == "" {
		return "", time.Time{}, errors.New("token response missing access_token")
	}
	return token, expiresAt, nil
}
