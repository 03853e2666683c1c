package listing

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/repo-harvester/internal/metrics"
)

// DefaultTimeout bounds one listing request when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Config controls the listing client.
type Config struct {
	BaseURL   string
	DumpDir   string
	UserAgent string
	Timeout   time.Duration
}

// Waiter paces outgoing requests.
type Waiter interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// Client fetches listing pages using a Colly collector.
type Client struct {
	cfg           Config
	base          *url.URL
	baseCollector *colly.Collector
	pacer         Waiter
	logger        *zap.Logger
	now           func() time.Time
}

// Option customizes a Client.
type Option func(*Client)

// WithPacer paces requests through w.
func WithPacer(w Waiter) Option {
	return func(c *Client) {
		c.pacer = w
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNow overrides the clock used to name dump files.
func WithNow(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New builds a Client for cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid listing base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(newHTTPTransport())
	collector.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		collector.UserAgent = cfg.UserAgent
	}

	c := &Client{
		cfg:           cfg,
		base:          base,
		baseCollector: collector,
		logger:        zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PageURL returns the listing URL for sinceID, keeping any query
// parameters already present on the base URL.
func (c *Client) PageURL(sinceID int64) string {
	u := *c.base
	q := u.Query()
	q.Set("since", strconv.FormatInt(sinceID, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchPage requests the page of repositories after sinceID. The raw
// body is dumped before it is parsed, including for error statuses.
func (c *Client) FetchPage(ctx context.Context, sinceID int64) (Page, error) {
	if c.pacer != nil {
		waited, err := c.pacer.Wait(ctx)
		if err != nil {
			return Page{}, err
		}
		if waited > time.Second {
			c.logger.Debug("listing request paced", zap.Duration("waited", waited))
		}
	}

	target := c.PageURL(sinceID)
	var (
		status   int
		body     []byte
		fetchErr error
	)
	collector := c.baseCollector.Clone()
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
			body = append([]byte(nil), r.Body...)
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return Page{}, fmt.Errorf("listing fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = fetchErr
		}
		if err != nil && status == 0 {
			metrics.ObserveListing(target, 0, 0)
			return Page{}, fmt.Errorf("listing visit failed: %w", err)
		}
	}

	metrics.ObserveListing(target, status, len(body))
	page := Page{StatusCode: status}
	dumpPath, err := c.dump(body)
	if err != nil {
		c.logger.Warn("could not dump listing response", zap.Error(err))
	}
	page.DumpPath = dumpPath

	c.logger.Debug("listing fetched",
		zap.String("url", target),
		zap.Int("status", status),
		zap.Int("bytes", len(body)),
		zap.String("dump", dumpPath),
	)

	if status >= http.StatusBadRequest {
		return page, fmt.Errorf("%w: HTTP code: %d", ErrStatus, status)
	}
	items, err := parsePage(status, body)
	if err != nil {
		return page, err
	}
	page.Items = items
	return page, nil
}

func (c *Client) dump(body []byte) (string, error) {
	if c.cfg.DumpDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(c.cfg.DumpDir, 0o750); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}
	path := filepath.Join(c.cfg.DumpDir, strconv.FormatInt(c.now().UnixNano(), 10)+"_listing.log")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return "", fmt.Errorf("write dump: %w", err)
	}
	return path, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
