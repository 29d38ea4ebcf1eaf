package whttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/weppos/publicsuffix-go/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	DefaultUserAgent = "puzzleimport/1.0"
	DefaultRetries   = 3
	DefaultRPS       = 5
	DefaultTimeout   = 30 * time.Second
)

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
	Body    []byte
}

type WHTTPRes struct {
	StatusCode     int
	ResponseLength int
	HTTPTitle      string
	BodyString     string
	RequestID      string
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Title      string
	Body       string
	RequestID  string
}

func (e *StatusError) Error() string {
	msg := e.Title
	if msg == "" {
		msg = truncate(strings.TrimSpace(e.Body), 200)
	}
	return fmt.Sprintf("http %d: %s (request %s)", e.StatusCode, msg, e.RequestID)
}

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	Proxy     string
	Retries   int
	RPS       float64
	Timeout   time.Duration
	UserAgent string
	RetryWait time.Duration
	Log       retryablehttp.LeveledLogger
}

// Client is a cookie-keeping, rate-limited HTTP client with retries.
type Client struct {
	http      *retryablehttp.Client
	limiter   *rate.Limiter
	userAgent string
}

func NewClient(opts Options) (*Client, error) {
	if opts.Retries < 0 {
		opts.Retries = 0
	} else if opts.Retries == 0 {
		opts.Retries = DefaultRetries
	}
	if opts.RPS <= 0 {
		opts.RPS = DefaultRPS
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.CookieJarList})
	if err != nil {
		return nil, err
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.Retries
	rc.HTTPClient.Jar = jar
	rc.HTTPClient.Timeout = opts.Timeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = checkRetry
	rc.Logger = nil
	if opts.Log != nil {
		rc.Logger = opts.Log
	}
	if opts.RetryWait > 0 {
		rc.RetryWaitMin = opts.RetryWait
		rc.RetryWaitMax = opts.RetryWait
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		if t, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
			t.Proxy = http.ProxyURL(proxyURL)
		} else {
			rc.HTTPClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	burst := int(opts.RPS)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http:      rc,
		limiter:   rate.NewLimiter(rate.Limit(opts.RPS), burst),
		userAgent: opts.UserAgent,
	}, nil
}

type nonIdempotentKey struct{}

// NonIdempotent marks requests sent with ctx as unsafe to replay. They are
// only retried when the server never saw them: a failed dial or a 429.
func NonIdempotent(ctx context.Context) context.Context {
	return context.WithValue(ctx, nonIdempotentKey{}, true)
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if once, _ := ctx.Value(nonIdempotentKey{}).(bool); !once {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		var opErr *net.OpError
		return errors.As(err, &opErr) && opErr.Op == "dial", nil
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

// Send performs one request. Transport failures and 5xx answers are retried
// by the underlying client unless ctx is NonIdempotent; any final non-2xx
// status becomes a *StatusError.
func (c *Client) Send(ctx context.Context, wReq *WHTTPReq) (*WHTTPRes, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var body interface{}
	if wReq.Body != nil {
		body = wReq.Body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, wReq.Method, wReq.URL, body)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("X-Request-ID", requestID)
	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	wRes := &WHTTPRes{
		StatusCode: resp.StatusCode,
		BodyString: string(bodyBytes),
		RequestID:  requestID,
	}
	wRes.ResponseLength = utf8.RuneCountInString(wRes.BodyString)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		wRes.HTTPTitle = getHTMLTitle(wRes.BodyString)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return wRes, &StatusError{
			StatusCode: resp.StatusCode,
			Title:      wRes.HTTPTitle,
			Body:       wRes.BodyString,
			RequestID:  requestID,
		}
	}
	return wRes, nil
}

// PostJSON sends body as application/json.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte) (*WHTTPRes, error) {
	return c.Send(ctx, &WHTTPReq{
		Method: http.MethodPost,
		URL:    url,
		Body:   body,
		Headers: []WHTTPHeader{
			{Name: "Content-Type", Value: "application/json"},
			{Name: "Accept", Value: "application/json"},
		},
	})
}

func (c *Client) cookies(u *url.URL) []*http.Cookie {
	return c.http.HTTPClient.Jar.Cookies(u)
}

func getHTMLTitle(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	title := doc.Find("title").First().Text()
	return strings.ToValidUTF8(strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(title, "\n", ""), "\r", "")), "")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
