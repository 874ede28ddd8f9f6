package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr1hm/go-quake-safety/internal/geo"
)

var ErrNoLocation = errors.New("location could not be determined")

// Locator resolves the caller's location without user input.
type Locator interface {
	Locate(ctx context.Context) (geo.Point, error)
}

// IPInfoLocator resolves location from the public IP through ipinfo.io.
type IPInfoLocator struct {
	url string
	req *requester
}

func NewIPInfoLocator(apiURL string, opts Options) *IPInfoLocator {
	return &IPInfoLocator{
		url: apiURL,
		req: newRequester("ipinfo", opts),
	}
}

func (l *IPInfoLocator) Locate(ctx context.Context) (geo.Point, error) {
	req, err := newGet(ctx, l.url)
	if err != nil {
		return geo.Point{}, err
	}
	body, err := l.req.do(req)
	if err != nil {
		return geo.Point{}, err
	}

	var data struct {
		Loc string `json:"loc"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return geo.Point{}, fmt.Errorf("%w: ipinfo: error decoding resp.Body: %w", ErrUpstream, err)
	}
	if data.Loc == "" {
		return geo.Point{}, fmt.Errorf("%w: ipinfo returned no loc", ErrNoLocation)
	}
	return ParseLatLon(data.Loc)
}

// ParseLatLon parses "lat,lon".
func ParseLatLon(s string) (geo.Point, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("%w: malformed lat,lon %q", geo.ErrInvalidCoordinate, s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: latitude %q: %w", geo.ErrInvalidCoordinate, latStr, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: longitude %q: %w", geo.ErrInvalidCoordinate, lonStr, err)
	}
	p := geo.NewPoint(lat, lon)
	return p, p.Validate()
}

// StaticLocator always answers with a configured point.
type StaticLocator struct {
	Point geo.Point
}

func (l StaticLocator) Locate(ctx context.Context) (geo.Point, error) {
	return l.Point, l.Point.Validate()
}

// LocatorChain tries each locator in order; the first success wins.
type LocatorChain []Locator

func (c LocatorChain) Locate(ctx context.Context) (geo.Point, error) {
	if len(c) == 0 {
		return geo.Point{}, fmt.Errorf("%w: no locators configured", ErrNoLocation)
	}

	var errs []error
	for _, l := range c {
		p, err := l.Locate(ctx)
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return geo.Point{}, ctx.Err()
		}
		errs = append(errs, err)
	}
	return geo.Point{}, fmt.Errorf("%w: %w", ErrNoLocation, errors.Join(errs...))
}
