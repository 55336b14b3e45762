// Package gatewayhttp talks plain HTTP to the world outside the cloud APIs: an echo endpoint to learn this process's
// public address and the gateway host itself to obtain an activation key.
package gatewayhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/andrewwormald/stepflow/provision"
)

const DefaultEchoURL = "http://httpbin.org/get"

var (
	ErrNoOrigin         = errors.New("echo response has no origin", j.C("ERR_5d1f0b7e3a9c2486"))
	ErrNoActivationKey  = errors.New("activation response has no activation key", j.C("ERR_a4c8e2f61b9d0735"))
	ErrUnexpectedStatus = errors.New("unexpected http status", j.C("ERR_0e6b3d9f7c1a5284"))
)

type options struct {
	timeout time.Duration
	echoURL string
	scheme  string
}

type Option func(*options)

// WithTimeout bounds every request. The default is 30 seconds.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithEchoURL overrides the endpoint used to resolve the public address.
func WithEchoURL(u string) Option {
	return func(o *options) {
		o.echoURL = u
	}
}

func defaultOptions() options {
	return options{
		timeout: 30 * time.Second,
		echoURL: DefaultEchoURL,
		scheme:  "http",
	}
}

// AddressResolver resolves the public address by asking an echo endpoint where the request came from.
type AddressResolver struct {
	client  *http.Client
	echoURL string
}

func NewAddressResolver(opts ...Option) *AddressResolver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &AddressResolver{
		client:  &http.Client{Timeout: o.timeout},
		echoURL: o.echoURL,
	}
}

var _ provision.AddressResolver = (*AddressResolver)(nil)

type echoResponse struct {
	Origin string `json:"origin"`
}

func (a *AddressResolver) PublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.echoURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "new echo request")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "echo request", j.KV("url", a.echoURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrap(ErrUnexpectedStatus, "", j.MKV{
			"url":    a.echoURL,
			"status": resp.StatusCode,
		})
	}

	var echo echoResponse
	err = json.NewDecoder(resp.Body).Decode(&echo)
	if err != nil {
		return "", errors.Wrap(err, "decode echo response")
	}

	// Behind proxies the origin is a comma separated chain with the client first.
	origin, _, _ := strings.Cut(echo.Origin, ",")
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", ErrNoOrigin
	}

	return origin, nil
}

// ActivationKeyFetcher requests the activation key from a gateway host. The host answers with a redirect whose
// location carries the key, so redirects are never followed.
type ActivationKeyFetcher struct {
	client *http.Client
	scheme string
}

func NewActivationKeyFetcher(opts ...Option) *ActivationKeyFetcher {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &ActivationKeyFetcher{
		client: &http.Client{
			Timeout: o.timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		scheme: o.scheme,
	}
}

var _ provision.ActivationKeyFetcher = (*ActivationKeyFetcher)(nil)

var activationKeyPattern = regexp.MustCompile(`activationKey=([A-Z0-9-]+)`)

func activationURL(scheme, host, region, gatewayType string) string {
	q := url.Values{}
	q.Set("activationRegion", region)
	q.Set("gatewayType", gatewayType)

	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     "/",
		RawQuery: q.Encode(),
	}

	return u.String()
}

func (f *ActivationKeyFetcher) ActivationKey(ctx context.Context, host, region, gatewayType string) (string, error) {
	target := activationURL(f.scheme, host, region, gatewayType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", errors.Wrap(err, "new activation request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "activation request", j.KV("host", host))
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		location = resp.Request.URL.String()
	}

	m := activationKeyPattern.FindStringSubmatch(location)
	if m == nil {
		return "", errors.Wrap(ErrNoActivationKey, "", j.MKV{
			"host":   host,
			"status": resp.StatusCode,
		})
	}

	return m[1], nil
}
