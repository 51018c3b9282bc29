package feeds

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"signalwatch/internal/domain/signal"
	"signalwatch/internal/metrics"
	"signalwatch/pkg/errors"
	"signalwatch/pkg/logger"
)

// MaxBodyBytes bounds how much of an upstream body is read
const MaxBodyBytes = 8 << 20

// Config configures the feed client
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Client performs single GETs against feed endpoints. It never retries.
type Client struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
	now       func() time.Time
	log       *logger.Logger
}

// NewClient creates a feed client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "signalwatch/1.0"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		http:      httpClient,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		now:       time.Now,
		log:       logger.Get().With("component", "feed_client"),
	}
}

// Fetch performs one bounded GET and returns the validated JSON body untouched
func (c *Client) Fetch(ctx context.Context, source signal.FeedSource) (signal.RawSnapshot, error) {
	start := c.now()
	snap, err := c.fetch(ctx, source)

	status := "success"
	if err != nil {
		status = string(KindOf(err))
	}
	metrics.RecordFetch(source.ID, status, time.Since(start))

	return snap, err
}

func (c *Client) fetch(ctx context.Context, source signal.FeedSource) (signal.RawSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return signal.RawSnapshot{}, c.fail(source, KindNetwork, 0, errors.Wrap(err, "build request"))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return signal.RawSnapshot{}, c.fail(source, classifyTransport(ctx, err), 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return signal.RawSnapshot{}, c.fail(source, KindHTTPStatus, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return signal.RawSnapshot{}, c.fail(source, classifyTransport(ctx, err), resp.StatusCode, errors.Wrap(err, "read body"))
	}
	if len(body) > MaxBodyBytes {
		return signal.RawSnapshot{}, c.fail(source, KindDecode, resp.StatusCode, errors.Newf("body exceeds %d bytes", MaxBodyBytes))
	}
	if !gjson.ValidBytes(body) {
		return signal.RawSnapshot{}, c.fail(source, KindDecode, resp.StatusCode, errors.New("body is not valid JSON"))
	}

	return signal.RawSnapshot{
		FeedID:     source.ID,
		Body:       body,
		StatusCode: resp.StatusCode,
		FetchedAt:  c.now(),
	}, nil
}

func (c *Client) fail(source signal.FeedSource, kind ErrorKind, status int, err error) error {
	fe := &FetchError{Kind: kind, FeedID: source.ID, URL: source.URL, StatusCode: status, Err: err}
	c.log.Debug("Feed fetch failed", "feed", source.ID, "kind", kind, "status", status, "error", err)
	return fe
}

func classifyTransport(ctx context.Context, err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
