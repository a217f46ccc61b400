// Package payrollsys предоставляет клиент для внешней системы расчёта зарплаты.
package payrollsys

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

	"github.com/mmeshcher/bonus-payroll/internal/model"
)

// ErrNotFound возвращается, если внешняя система не нашла запрошенное начисление.
var ErrNotFound = errors.New("payroll record not found")

// ErrNotConfigured возвращается, если адрес внешней системы не задан.
var ErrNotConfigured = errors.New("payroll system client not configured")

// ErrMissingData возвращается, если в ответе внешней системы нет поля data.
var ErrMissingData = errors.New("payroll system response has no data")

// RateLimitError возвращается при ответе 429.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("payroll system rate limit, retry after %s", e.RetryAfter)
}

// StatusError описывает неожиданный код ответа.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

const listPageLimit = 100

// envelope описывает ответ внешней системы вида {data, meta}.
type envelope[T any] struct {
	Data *T              `json:"data"`
	Meta *model.PageMeta `json:"meta"`
}

func fetch[T any](ctx context.Context, c *Client, method, path string, body []byte) (envelope[T], error) {
	var env envelope[T]
	if err := c.do(ctx, method, path, body, &env); err != nil {
		return env, err
	}
	if env.Data == nil {
		return env, ErrMissingData
	}
	return env, nil
}

// Client инкапсулирует HTTP-взаимодействие с системой расчёта зарплаты.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент для обращения к системе расчёта зарплаты по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetPayrollByUserAndPeriod запрашивает начисление пользователя за период.
func (c *Client) GetPayrollByUserAndPeriod(ctx context.Context, userID string, year, month int) (*model.PayrollRecord, error) {
	path := fmt.Sprintf("/api/payroll/users/%s/periods/%d/%d", url.PathEscape(userID), year, month)

	env, err := fetch[model.PayrollRecord](ctx, c, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// ListPayrollByPeriod запрашивает одну страницу начислений за период.
func (c *Client) ListPayrollByPeriod(ctx context.Context, year, month, page, limit int) (*model.PayrollPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	path := fmt.Sprintf("/api/payroll/periods/%d/%d?%s", year, month, q.Encode())

	env, err := fetch[[]model.PayrollRecord](ctx, c, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	result := &model.PayrollPage{Data: *env.Data}
	if env.Meta != nil {
		result.Meta = *env.Meta
	}
	return result, nil
}

// ListAllPayrollByPeriod собирает все страницы начислений за период.
func (c *Client) ListAllPayrollByPeriod(ctx context.Context, year, month int) ([]model.PayrollRecord, error) {
	records := make([]model.PayrollRecord, 0)
	for page := 1; ; page++ {
		res, err := c.ListPayrollByPeriod(ctx, year, month, page, listPageLimit)
		if err != nil {
			return nil, fmt.Errorf("list payroll page %d: %w", page, err)
		}
		records = append(records, res.Data...)
		if !res.Meta.HasNextPage || len(res.Data) == 0 {
			return records, nil
		}
	}
}

// Simulate запускает расчёт бонусов «что если» во внешней системе.
func (c *Client) Simulate(ctx context.Context, req model.SimulationRequest) (*model.SimulationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	env, err := fetch[model.SimulationResult](ctx, c, http.MethodPost, "/api/bonus/simulate", body)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseRetryAfter разбирает Retry-After в секундах или в виде HTTP-даты.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
