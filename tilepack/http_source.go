package tilepack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/tilemath"
)

const (
	httpUserAgent = "go-tilemesh/1.0"

	defaultRetries = 5
	defaultBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

type HTTPSourceOptions struct {
	// URLTemplate has {z}, {x} and {y} placeholders.
	URLTemplate string
	Timeout     time.Duration
	Retries     int
	// Backoff is the first delay after a server error; it doubles on
	// every retry.
	Backoff   time.Duration
	UserAgent string
	Client    *http.Client
	Logger    logrus.FieldLogger
}

// HTTPSource fetches tiles from an XYZ tile server.
type HTTPSource struct {
	httpClient  *http.Client
	urlTemplate string
	retries     int
	backoff     time.Duration
	userAgent   string
	logger      logrus.FieldLogger
}

func NewHTTPSource(opts HTTPSourceOptions) (*HTTPSource, error) {
	if opts.URLTemplate == "" {
		return nil, errors.New("http source needs a URL template")
	}

	httpClient := opts.Client
	if httpClient == nil {
		// Configure the HTTP client with a timeout and connection pools
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 500,
				DisableCompression:  true,
			},
		}
	}

	s := &HTTPSource{
		httpClient:  httpClient,
		urlTemplate: opts.URLTemplate,
		retries:     opts.Retries,
		backoff:     opts.Backoff,
		userAgent:   opts.UserAgent,
		logger:      opts.Logger,
	}
	if s.retries <= 0 {
		s.retries = defaultRetries
	}
	if s.backoff <= 0 {
		s.backoff = defaultBackoff
	}
	if s.userAgent == "" {
		s.userAgent = httpUserAgent
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	return s, nil
}

// URL expands the template for id.
func (s *HTTPSource) URL(id tilemath.TileID) string {
	return strings.NewReplacer(
		"{x}", fmt.Sprintf("%d", id.X),
		"{y}", fmt.Sprintf("%d", id.Y),
		"{z}", fmt.Sprintf("%d", id.Z)).Replace(s.urlTemplate)
}

// Fetch returns the response body as sent, which may be gzip compressed.
// A 404 or 204 response is ErrTileNotFound.
func (s *HTTPSource) Fetch(ctx context.Context, id tilemath.TileID) ([]byte, error) {
	url := s.URL(id)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating HTTP request")
	}
	httpReq.Header.Add("User-Agent", s.userAgent)
	httpReq.Header.Add("Accept-Encoding", "gzip")

	resp, err := doHTTPWithRetry(ctx, s.httpClient, httpReq, s.retries, s.backoff)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching tile %s", id)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading tile %s from %s", id, url)
	}

	s.logger.WithFields(logrus.Fields{"tile": id.String(), "bytes": len(body)}).Debug("Fetched tile")
	return body, nil
}

func doHTTPWithRetry(ctx context.Context, client *http.Client, request *http.Request, nRetries int, sleep time.Duration) (*http.Response, error) {
	for i := 0; i < nRetries; i++ {
		resp, err := client.Do(request)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
			resp.Body.Close()
			return nil, errors.Wrapf(ErrTileNotFound, "GET %s: %s", request.URL, resp.Status)
		case resp.StatusCode < 500:
			resp.Body.Close()
			return nil, errors.Newf("GET %s: %s", request.URL, resp.Status)
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		sleep *= 2
		if sleep > maxBackoff {
			sleep = maxBackoff
		}
	}

	return nil, errors.Newf("ran out of HTTP GET retries for %s", request.URL)
}
