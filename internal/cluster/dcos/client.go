package dcos

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"converge/pkg/logging"
)

// HTTPError is returned for responses outside the accepted status codes.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, strings.TrimSpace(body))
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}

// ClientOptions configures the cluster HTTP client.
type ClientOptions struct {
	// URL is the cluster URL, e.g. https://master.mesos.
	URL string
	// TokenSource supplies the ACS token. Nil sends unauthenticated requests.
	TokenSource           oauth2.TokenSource
	InsecureSkipTLSVerify bool
	// CACertFile is a PEM bundle trusted in addition to the system roots.
	CACertFile string
	Timeout    time.Duration
}

// Client is an HTTP client for the DC/OS admin router.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid cluster url %q: %w", opts.URL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid cluster url %q: scheme and host required", opts.URL)
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: opts.InsecureSkipTLSVerify} //nolint:gosec // opt-in for self-signed clusters
	if opts.CACertFile != "" {
		pem, err := os.ReadFile(opts.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", opts.CACertFile)
		}
		tlsConfig.RootCAs = pool
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	var rt http.RoundTripper = transport
	if opts.TokenSource != nil {
		rt = &tokenTransport{source: oauth2.ReuseTokenSource(nil, opts.TokenSource), base: transport}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		base: base,
		http: &http.Client{Transport: rt, Timeout: timeout},
	}, nil
}

// StaticToken returns a token source for a fixed ACS token.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "token"})
}

// tokenTransport authenticates requests the way the admin router expects:
// "Authorization: token=<acs token>".
type tokenTransport struct {
	source oauth2.TokenSource
	base   http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain cluster token: %w", err)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "token="+tok.AccessToken)
	return t.base.RoundTrip(req)
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        interface{}
	contentType string
	accept      string
	// ok lists extra status codes accepted besides 2xx.
	ok []int
}

func (c *Client) do(ctx context.Context, r request) (int, []byte, error) {
	u := *c.base
	u.Path = c.base.Path + r.path
	u.RawQuery = r.query.Encode()

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return 0, nil, err
	}
	if r.body != nil {
		ct := r.contentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)

	logging.Debug("DCOSClient", "%s %s", r.method, u.Path)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response from %s: %w", u.Path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, data, nil
	}
	for _, code := range r.ok {
		if resp.StatusCode == code {
			return resp.StatusCode, data, nil
		}
	}
	return resp.StatusCode, data, &HTTPError{
		Method:     r.method,
		URL:        u.Path,
		StatusCode: resp.StatusCode,
		Body:       string(data),
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}, ok ...int) error {
	_, data, err := c.do(ctx, request{method: http.MethodGet, path: path, ok: ok})
	if err != nil {
		return err
	}
	return decode(path, data, out)
}

func decode(path string, data []byte, out interface{}) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// servicePath returns the admin router prefix for a (possibly foldered)
// service: "/test/hdfs" -> "/service/test/hdfs".
func servicePath(service string) string {
	return "/service/" + strings.Trim(service, "/")
}

// appID normalises a service name to a Marathon app id.
func appID(service string) string {
	return "/" + strings.Trim(service, "/")
}
