// Package horizon implements ledger.Client against a Horizon-compatible
// HTTP API. All calls run through a circuit breaker so a flapping endpoint
// fails fast instead of stalling attempt pipelines; ledger verdicts (4xx
// problem responses) do not count as breaker failures, only transport
// errors and 5xx responses do.
package horizon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/donsmila-fx/piclaim/ledger"
	"github.com/donsmila-fx/piclaim/predicate"
)

// Ensure Client implements ledger.Client at compile time.
var _ ledger.Client = (*Client)(nil)

// DefaultTimeout bounds each HTTP request.
const DefaultTimeout = 10 * time.Second

// listLimit is the page size for claimable balance listings. One page is
// enough: the engine acts on the first eligible balance.
const listLimit = 200

// Client talks to one Horizon endpoint. Safe for concurrent use.
type Client struct {
	base    string
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpc = c }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.httpc.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client for the given base URL, e.g.
// "https://api.mainnet.minepi.com".
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(base, "/"),
		httpc:  &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "horizon",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			c.logger.Warn("horizon circuit breaker state change",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return c
}

// response is what the breaker hands back: any reply the endpoint produced,
// including problem responses.
type response struct {
	status     int
	body       []byte
	retryAfter time.Duration
}

// do executes a request through the breaker. Transport failures and 5xx
// responses are breaker failures; everything else is a response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, form url.Values) (*response, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		u := c.base + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return nil, err
		}
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("horizon: %s %s: status %d", method, path, resp.StatusCode)
		}

		r := &response{status: resp.StatusCode, body: raw}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				r.retryAfter = time.Duration(secs) * time.Second
			}
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("horizon: %s %s: %w", method, path, err)
	}
	return out.(*response), nil
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

type accountResponse struct {
	Sequence string `json:"sequence"`
	Balances []struct {
		Balance     string `json:"balance"`
		AssetType   string `json:"asset_type"`
		AssetCode   string `json:"asset_code"`
		AssetIssuer string `json:"asset_issuer"`
	} `json:"balances"`
}

// LoadAccount implements ledger.Client.
func (c *Client) LoadAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	resp, err := c.do(ctx, http.MethodGet, "/accounts/"+accountID, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, fmt.Errorf("horizon: load account %s: status %d", accountID, resp.status)
	}

	var ar accountResponse
	if err := json.Unmarshal(resp.body, &ar); err != nil {
		return nil, fmt.Errorf("horizon: decode account: %w", err)
	}
	seq, err := strconv.ParseInt(ar.Sequence, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("horizon: account sequence %q: %w", ar.Sequence, err)
	}

	acct := &ledger.Account{ID: accountID, Sequence: seq}
	for _, b := range ar.Balances {
		amount, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return nil, fmt.Errorf("horizon: balance %q: %w", b.Balance, err)
		}
		asset := ledger.AssetNative
		if b.AssetType != "native" {
			asset = b.AssetCode + ":" + b.AssetIssuer
		}
		acct.Balances = append(acct.Balances, ledger.Balance{Asset: asset, Amount: amount})
	}
	return acct, nil
}

// ──────────────────────────────────────────────────
// Claimable balances
// ──────────────────────────────────────────────────

type claimableBalancesResponse struct {
	Embedded struct {
		Records []struct {
			ID        string `json:"id"`
			Asset     string `json:"asset"`
			Amount    string `json:"amount"`
			Sponsor   string `json:"sponsor"`
			Claimants []struct {
				Destination string          `json:"destination"`
				Predicate   json.RawMessage `json:"predicate"`
			} `json:"claimants"`
		} `json:"records"`
	} `json:"_embedded"`
}

// ListClaimableBalances implements ledger.Client. Records whose predicate
// cannot be parsed are kept with a nil predicate so downstream eligibility
// checks fail closed instead of aborting the listing.
func (c *Client) ListClaimableBalances(ctx context.Context, claimant string) ([]*ledger.ClaimableBalance, error) {
	query := url.Values{
		"claimant": {claimant},
		"limit":    {strconv.Itoa(listLimit)},
	}
	resp, err := c.do(ctx, http.MethodGet, "/claimable_balances", query, nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, fmt.Errorf("horizon: list claimable balances: status %d", resp.status)
	}

	var cr claimableBalancesResponse
	if err := json.Unmarshal(resp.body, &cr); err != nil {
		return nil, fmt.Errorf("horizon: decode claimable balances: %w", err)
	}

	out := make([]*ledger.ClaimableBalance, 0, len(cr.Embedded.Records))
	for _, rec := range cr.Embedded.Records {
		amount, err := decimal.NewFromString(rec.Amount)
		if err != nil {
			return nil, fmt.Errorf("horizon: claimable balance amount %q: %w", rec.Amount, err)
		}
		asset := rec.Asset
		if asset == "" {
			asset = ledger.AssetNative
		}
		cb := &ledger.ClaimableBalance{
			ID:      rec.ID,
			Asset:   asset,
			Amount:  amount,
			Sponsor: rec.Sponsor,
		}
		for _, cl := range rec.Claimants {
			p, perr := predicate.ParseJSON(cl.Predicate, time.Time{})
			if perr != nil {
				c.logger.Warn("unparseable claim predicate, treating as not claimable",
					slog.String("balance_id", rec.ID),
					slog.String("claimant", cl.Destination),
					slog.String("error", perr.Error()),
				)
				p = nil
			}
			cb.Claimants = append(cb.Claimants, ledger.Claimant{
				Destination: cl.Destination,
				Predicate:   p,
			})
		}
		out = append(out, cb)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Fees
// ──────────────────────────────────────────────────

type feeStatsResponse struct {
	LastLedgerBaseFee string `json:"last_ledger_base_fee"`
}

// BaseFee implements ledger.Client.
func (c *Client) BaseFee(ctx context.Context) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/fee_stats", nil, nil)
	if err != nil {
		return 0, err
	}
	if resp.status != http.StatusOK {
		return 0, fmt.Errorf("horizon: fee stats: status %d", resp.status)
	}

	var fr feeStatsResponse
	if err := json.Unmarshal(resp.body, &fr); err != nil {
		return 0, fmt.Errorf("horizon: decode fee stats: %w", err)
	}
	fee, err := strconv.ParseInt(fr.LastLedgerBaseFee, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("horizon: base fee %q: %w", fr.LastLedgerBaseFee, err)
	}
	return fee, nil
}

// ──────────────────────────────────────────────────
// Submission
// ──────────────────────────────────────────────────

type submitResponse struct {
	Hash string `json:"hash"`
}

// problem is the RFC 7807 error document Horizon returns, with transaction
// result codes in extras.
type problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Extras struct {
		ResultCodes struct {
			Transaction string   `json:"transaction"`
			Operations  []string `json:"operations"`
		} `json:"result_codes"`
	} `json:"extras"`
}

// SubmitTransaction implements ledger.Client, mapping the endpoint's reply
// onto the ledger error taxonomy.
func (c *Client) SubmitTransaction(ctx context.Context, envelope []byte) (string, error) {
	form := url.Values{"tx": {string(envelope)}}
	resp, err := c.do(ctx, http.MethodPost, "/transactions", nil, form)
	if err != nil {
		return "", err
	}

	switch {
	case resp.status == http.StatusOK:
		var sr submitResponse
		if err := json.Unmarshal(resp.body, &sr); err != nil {
			return "", fmt.Errorf("horizon: decode submit response: %w", err)
		}
		return sr.Hash, nil

	case resp.status == http.StatusTooManyRequests:
		return "", &ledger.RateLimitError{RetryAfter: resp.retryAfter}

	default:
		var p problem
		if err := json.Unmarshal(resp.body, &p); err != nil {
			return "", fmt.Errorf("horizon: submit: status %d", resp.status)
		}
		if p.Extras.ResultCodes.Transaction == "tx_bad_seq" {
			return "", ledger.ErrBadSequence
		}
		code := p.Extras.ResultCodes.Transaction
		if code == "tx_failed" && len(p.Extras.ResultCodes.Operations) > 0 {
			code = strings.Join(p.Extras.ResultCodes.Operations, ",")
		}
		if code == "" {
			code = p.Title
		}
		return "", &ledger.RejectedError{Code: code}
	}
}
