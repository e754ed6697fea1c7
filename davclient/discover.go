package davclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/cyp0633/calevents/internal/httpclient"
)

type CalendarInfo struct {
	URI      string
	Name     string
	Color    string
	ReadOnly bool
}

// DNSResolver interface for mocking DNS lookups in tests
type DNSResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (cname string, addrs []*net.SRV, err error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Config holds configuration for FindCalendars
type Config struct {
	Resolver DNSResolver
	Client   *http.Client
	Logger   *slog.Logger
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Resolver: &net.Resolver{},
		Client:   &http.Client{},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// FindCalendars lists the event calendars reachable from location, logic
// from thunderbird
func FindCalendars(ctx context.Context, location string, username string, password string) (calendars []CalendarInfo, err error) {
	return FindCalendarsWithConfig(ctx, location, username, password, DefaultConfig())
}

// FindCalendarsWithConfig allows injecting custom configuration for testing
func FindCalendarsWithConfig(ctx context.Context, location string, username string, password string, cfg *Config) ([]CalendarInfo, error) {
	if location == "" {
		return nil, fmt.Errorf("invalid URL")
	}
	baseURL, err := url.Parse(location)
	if err != nil || baseURL.Host == "" || (baseURL.Scheme != "http" && baseURL.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	client := &http.Client{}
	if cfg.Client != nil {
		*client = *cfg.Client
	}
	client.Transport = httpclient.NewBasicAuthTransport(username, password, client.Transport, logger)

	wrapper, err := httpclient.NewHttpClientWrapper(client, *baseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client wrapper: %w", err)
	}

	principalURL, err := findPrincipal(ctx, wrapper, candidateLocations(ctx, baseURL, cfg.Resolver), logger)
	if err != nil {
		return nil, err
	}

	resp, err := wrapper.DoPROPFIND(ctx, principalURL, 0, "calendar-home-set")
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar-home-set: %w", err)
	}
	if resp.CalendarHomeSet == "" {
		return nil, fmt.Errorf("no calendar-home-set found")
	}
	calendarHome := resolve(principalURL, resp.CalendarHomeSet)

	resp, err = wrapper.DoPROPFIND(ctx, calendarHome, 1,
		"resourcetype",
		"displayname",
		"calendar-color",
		"current-user-privilege-set",
		"supported-calendar-component-set")
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	calendars := make([]CalendarInfo, 0, len(resp.Resources))
	for uri, resource := range resp.Resources {
		if !resource.IsCalendar || !resource.SupportsEvents() {
			continue
		}
		calendars = append(calendars, CalendarInfo{
			URI:      resolve(calendarHome, uri),
			Name:     resource.DisplayName,
			Color:    resource.Color,
			ReadOnly: !resource.CanWrite,
		})
	}
	sort.Slice(calendars, func(i, j int) bool { return calendars[i].URI < calendars[j].URI })
	return calendars, nil
}

// candidateLocations lists where the principal may be found, in order: the
// given path, DNS SRV targets, the well-known URL and the server root
func candidateLocations(ctx context.Context, baseURL *url.URL, resolver DNSResolver) []string {
	var locations []string
	if baseURL.Path != "/" && baseURL.Path != "" {
		locations = append(locations, baseURL.String())
	}

	if resolver != nil {
		for _, prefix := range []string{"_caldavs._tcp.", "_caldav._tcp."} {
			host := prefix + baseURL.Hostname()
			_, addrs, err := resolver.LookupSRV(ctx, "", "", host)
			if err != nil {
				continue
			}

			var path string
			txts, _ := resolver.LookupTXT(ctx, host)
			for _, txt := range txts {
				if p, ok := strings.CutPrefix(txt, "path="); ok {
					path = p
					break
				}
			}

			scheme := "http"
			if prefix == "_caldavs._tcp." {
				scheme = "https"
			}
			for _, addr := range addrs {
				target := strings.TrimSuffix(addr.Target, ".")
				locations = append(locations, fmt.Sprintf("%s://%s:%d%s", scheme, target, addr.Port, path))
			}
		}
	}

	locations = append(locations, baseURL.JoinPath(".well-known", "caldav").String())
	root := *baseURL
	root.Path = "/"
	return append(locations, root.String())
}

func findPrincipal(ctx context.Context, wrapper httpclient.HttpClientWrapper, locations []string, logger *slog.Logger) (string, error) {
	for _, location := range locations {
		resp, err := wrapper.DoPROPFIND(ctx, location, 0, "current-user-principal")
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			var statusErr *httpclient.StatusError
			if !errors.As(err, &statusErr) {
				logger.Debug("discovery location unreachable", "location", location, "error", err)
			}
			continue
		}
		if resp.CurrentUserPrincipal != "" {
			return resolve(location, resp.CurrentUserPrincipal), nil
		}
	}
	return "", fmt.Errorf("could not find current-user-principal")
}

// resolve turns an href into an absolute URL relative to base
func resolve(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
