package portalsync

import (
	"context"
	"io"
	"net/http"

	pkderrors "github.com/icao-pkd/trustdir/errors"
)

// HTTPFetcher implements core.PortalFetcher against a real ICAO portal
// URL over HTTPS. The per-request timeout is applied by the caller via
// the context (Syncer.fetchWithRetry wraps every call in fetchTimeout);
// HTTPFetcher uses whatever http.Client it is given and sets no timeout
// on it.
type HTTPFetcher struct {
	client *http.Client
	url    string
}

// NewHTTPFetcher constructs a fetcher for the given portal URL.
func NewHTTPFetcher(client *http.Client, portalURL string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, url: portalURL}
}

// FetchPortalHTML performs the HTTPS GET named in spec §4.9 step 1.
func (f *HTTPFetcher) FetchPortalHTML(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", pkderrors.ConfigError("invalid ICAO portal URL %q: %s", f.url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", pkderrors.NetworkError("ICAO portal request failed: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", pkderrors.NetworkError("ICAO portal returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", pkderrors.NetworkError("reading ICAO portal response: %s", err)
	}
	return string(body), nil
}
