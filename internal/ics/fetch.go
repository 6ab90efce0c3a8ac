package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	appLog "evcal/internal/log"
)

// maxBodyBytes caps a downloaded calendar.
const maxBodyBytes = 8 << 20

// Fetcher downloads .ics payloads for import.
type Fetcher struct {
	client *http.Client
}

// ErrBlockedURL is returned for URLs a public fetcher refuses: schemes other
// than http and https, and hosts that resolve to loopback, link-local,
// private or unspecified addresses.
var ErrBlockedURL = errors.New("calendar URL not allowed")

// NewFetcher returns a Fetcher; a nil client gets a 15 second timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client}
}

// NewPublicFetcher returns a Fetcher that only connects to public addresses.
// The check runs on the resolved address at dial time, so redirects and DNS
// answers pointing inward are refused too.
func NewPublicFetcher() *Fetcher {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			if ip := net.ParseIP(host); ip == nil || !publicIP(ip) {
				return fmt.Errorf("%w: %s", ErrBlockedURL, host)
			}
			return nil
		},
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Fetcher{client: &http.Client{Timeout: 15 * time.Second, Transport: transport}}
}

func publicIP(ip net.IP) bool {
	return !ip.IsLoopback() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast() &&
		!ip.IsInterfaceLocalMulticast() &&
		!ip.IsMulticast() &&
		!ip.IsPrivate() &&
		!ip.IsUnspecified()
}

// Fetch returns the body served at rawURL. Only http and https are fetched.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if rawURL == "" {
		return nil, errors.New("source URL is empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlockedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrBlockedURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrBlockedURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")

	appLog.Info("ics fetch start", "url", redactURL(rawURL))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", redactURL(rawURL), resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("fetch %s: body larger than %d bytes", redactURL(rawURL), maxBodyBytes)
	}
	appLog.Info("ics fetch success", "url", redactURL(rawURL), "bytes", len(body))
	return body, nil
}

// redactURL keeps only scheme and host of a calendar URL for logging;
// private feed URLs carry secrets in the path or query.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
