package client

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
	"github.com/saiset-co/sai-aggregator/utils"
)

type State int32

const (
	StateRunning State = iota
	StateStopped
)

const (
	defaultRequestTimeout  = 10 * time.Second
	defaultMaxConnsPerHost = 16
	defaultUserAgent       = "sai-aggregator/1.0"
	maxErrorBodyLength     = 256
)

type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// HTTPClient is the pooled outbound transport shared by all provider adapters.
// fasthttp keeps at most MaxConnsPerHost sockets open per upstream host.
type HTTPClient struct {
	logger         types.Logger
	client         *fasthttp.Client
	userAgent      string
	requestTimeout time.Duration
	state          atomic.Value
}

func NewHTTPClient(config *types.ClientConfig, logger types.Logger) *HTTPClient {
	timeout := defaultRequestTimeout
	maxConns := defaultMaxConnsPerHost
	userAgent := defaultUserAgent
	maxBody := 0

	if config != nil {
		if config.Timeout > 0 {
			timeout = config.Timeout
		}
		if config.MaxConnsPerHost > 0 {
			maxConns = config.MaxConnsPerHost
		}
		if config.UserAgent != "" {
			userAgent = config.UserAgent
		}
		maxBody = config.MaxBodySize
	}

	httpClient := &fasthttp.Client{
		Name:                userAgent,
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
		MaxConnsPerHost:     maxConns,
		MaxConnWaitTimeout:  timeout,
		MaxResponseBodySize: maxBody,
		MaxIdleConnDuration: 90 * time.Second,
	}

	c := &HTTPClient{
		logger:         logger,
		client:         httpClient,
		userAgent:      userAgent,
		requestTimeout: timeout,
	}
	c.state.Store(StateRunning)

	logger.Debug("HTTP client initialized",
		zap.Duration("timeout", timeout),
		zap.Int("max_conns_per_host", maxConns))

	return c
}

// Get performs one GET. Non-2xx answers come back as *types.StatusError and
// transport timeouts as types.ErrTimeout; the caller decides about retries.
func (c *HTTPClient) Get(ctx context.Context, uri string, headers map[string]string) (*Response, error) {
	if !c.IsRunning() {
		return nil, types.ErrClientNotActive
	}

	deadline := time.Now().Add(c.requestTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	type result struct {
		resp *Response
		err  error
	}

	done := make(chan result, 1)
	go func() {
		resp, err := c.do(uri, headers, deadline)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.WrapError(types.ErrTimeout, uri)
		}
		return nil, types.WrapError(ctx.Err(), "request aborted")
	}
}

func (c *HTTPClient) do(uri string, headers map[string]string, deadline time.Time) (*Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetUserAgent(c.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
			return nil, types.WrapError(types.ErrTimeout, uri)
		}
		return nil, types.WrapError(err, "request failed")
	}

	statusCode := resp.StatusCode()
	if statusCode < 200 || statusCode > 299 {
		return nil, &types.StatusError{
			StatusCode: statusCode,
			RetryAfter: ParseRetryAfter(utils.BytesToString(resp.Header.Peek(fasthttp.HeaderRetryAfter)), time.Now()),
			Body:       utils.Truncate(strings.TrimSpace(string(resp.Body())), maxErrorBodyLength),
		}
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	return &Response{
		StatusCode:  statusCode,
		ContentType: string(resp.Header.ContentType()),
		Body:        body,
	}, nil
}

func (c *HTTPClient) Close() {
	if !c.state.CompareAndSwap(StateRunning, StateStopped) {
		return
	}
	c.client.CloseIdleConnections()
	c.logger.Debug("HTTP client closed")
}

func (c *HTTPClient) IsRunning() bool {
	return c.state.Load().(State) == StateRunning
}

// ParseRetryAfter accepts both forms of the header: delay seconds or an HTTP date.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if delay := at.Sub(now); delay > 0 {
			return delay
		}
	}

	return 0
}
