package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aldoetobex/assignment-portal/pkg/models"
	"github.com/aldoetobex/assignment-portal/pkg/utils"
)

/*
Client wraps the marketplace REST API. Every call forwards the signed-in
user's bearer token; the marketplace decides what that user may see.

Reads are retried with backoff on transport errors and 5xx/429. Writes are
never retried here: the wizard and the wallet surface the failure and let the
user retry.
*/
type Client struct {
	baseURL   string
	http      *http.Client
	retries   int
	retryBase time.Duration
	log       *zap.Logger
}

// Option configures the client
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetry sets the attempt budget and base delay for reads.
func WithRetry(attempts int, base time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retries = attempts
		}
		c.retryBase = base
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		retries:   3,
		retryBase: 200 * time.Millisecond,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx answer. Message is the marketplace's human-readable
// text and is shown to the user verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// ErrTransport wraps network failures so callers can tell them apart from
// business rejections.
var ErrTransport = errors.New("marketplace unreachable")

// Retriable reports whether a read may be attempted again.
func Retriable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	return errors.Is(err, ErrTransport)
}

// HTTPError maps a failed marketplace call to the portal's response.
// Authentication, authorization and not-found answers pass through with the
// marketplace's message; anything else is a 502. Failures without a
// marketplace answer use fallback.
func HTTPError(err error, fallback string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case fiber.StatusUnauthorized, fiber.StatusForbidden, fiber.StatusNotFound:
			return fiber.NewError(apiErr.Status, apiErr.Message)
		}
		return fiber.NewError(fiber.StatusBadGateway, apiErr.Message)
	}
	return fiber.NewError(fiber.StatusBadGateway, fallback)
}

/* ============================== Plumbing ================================ */

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out (when out is non-nil).
func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return decodeError(res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func decodeError(res *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var body struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	msg := ""
	if json.Unmarshal(b, &body) == nil {
		msg = strings.TrimSpace(body.Message)
		if msg == "" {
			if s, ok := body.Error.(string); ok {
				msg = strings.TrimSpace(s)
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(res.StatusCode)
	}
	return &APIError{Status: res.StatusCode, Message: msg}
}

func (c *Client) getJSON(ctx context.Context, path, token string, out any) error {
	_, err := utils.RetryWithBackoff(ctx, c.retries, c.retryBase, Retriable, func() (struct{}, error) {
		req, err := c.newRequest(ctx, http.MethodGet, path, token, nil)
		if err != nil {
			return struct{}{}, err
		}
		err = c.do(req, out)
		if err != nil && Retriable(err) {
			c.log.Warn("marketplace read failed", zap.String("path", path), zap.Error(err))
		}
		return struct{}{}, err
	})
	return unwrapRetry(err)
}

// unwrapRetry strips the "after N attempts" wrapper so callers still see the
// *APIError message verbatim.
func unwrapRetry(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return err
}

func (c *Client) sendJSON(ctx context.Context, method, path, token string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, token, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

/* ============================= Assignments ============================== */

// GetAssignment fetches one record. A missing history is a valid answer.
func (c *Client) GetAssignment(ctx context.Context, token, id string) (*models.Assignment, error) {
	var a models.Assignment
	if err := c.getJSON(ctx, "/assignments/"+url.PathEscape(id), token, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListParams filters the assignment list.
type ListParams struct {
	Page     int
	PageSize int
	Stage    models.Stage
	Search   string
}

func (p ListParams) encode() string {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	if p.Stage != "" {
		q.Set("stage", string(p.Stage))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// AssignmentPage is the paginated list shape.
type AssignmentPage struct {
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
	Total    int64               `json:"total"`
	Pages    int                 `json:"pages"`
	Items    []models.Assignment `json:"items"`
}

func (c *Client) ListAssignments(ctx context.Context, token string, p ListParams) (*AssignmentPage, error) {
	var page AssignmentPage
	if err := c.getJSON(ctx, "/assignments"+p.encode(), token, &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []models.Assignment{}
	}
	return &page, nil
}

// StaffUpdate assigns a project manager and/or a freelancer.
type StaffUpdate struct {
	PMName          *string `json:"pm_name,omitempty"`
	PMPhone         *string `json:"pm_phone,omitempty"`
	FreelancerName  *string `json:"freelancer_name,omitempty"`
	FreelancerPhone *string `json:"freelancer_phone,omitempty"`
}

func (c *Client) UpdateStaff(ctx context.Context, token, id string, in StaffUpdate) (*models.Assignment, error) {
	var a models.Assignment
	if err := c.sendJSON(ctx, http.MethodPatch, "/assignments/"+url.PathEscape(id)+"/staff", token, in, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

/* ================================ Wallet ================================ */

func (c *Client) GetWallet(ctx context.Context, token string) (*models.Wallet, error) {
	var w models.Wallet
	if err := c.getJSON(ctx, "/wallet", token, &w); err != nil {
		return nil, err
	}
	if w.Transactions == nil {
		w.Transactions = []models.WalletTransaction{}
	}
	return &w, nil
}

// TopUpVerification asks the marketplace to credit a captured payment.
type TopUpVerification struct {
	PaymentReference string       `json:"payment_reference"`
	Provider         string       `json:"provider"`
	Amount           models.Money `json:"amount"`
}

func (c *Client) VerifyTopUp(ctx context.Context, token string, in TopUpVerification) error {
	return c.sendJSON(ctx, http.MethodPost, "/wallet/topups", token, in, nil)
}
