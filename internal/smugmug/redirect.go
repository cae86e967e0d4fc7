package smugmug

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RedirectPolicy decides where a redirected request goes next. redirects is
// the number of redirects already followed for the request. Returning an
// error stops the request with dups.ErrRedirect.
type RedirectPolicy func(resp *http.Response, redirects int) (*url.URL, error)

var (
	errTooManyRedirects = errors.New("redirected more than once")
	errNoLocation       = errors.New("redirect without Location header")
)

// ReissueOnce returns the default policy: re-sign and re-issue the request
// once against its Location, which may be absolute, root-relative or
// relative to the API base URL. A Location without a query keeps the query
// of the redirected request.
func ReissueOnce(baseURL string) RedirectPolicy {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	return func(resp *http.Response, redirects int) (*url.URL, error) {
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if redirects >= 1 {
			return nil, errTooManyRedirects
		}
		next, err := resolveLocation(base, resp.Header.Get("Location"))
		if err != nil {
			return nil, err
		}
		if next.RawQuery == "" && resp.Request != nil && resp.Request.URL != nil {
			next.RawQuery = resp.Request.URL.RawQuery
		}
		return next, nil
	}
}

func resolveLocation(base *url.URL, location string) (*url.URL, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errNoLocation
	}
	ref, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse Location %q: %w", location, err)
	}
	return base.ResolveReference(ref), nil
}
