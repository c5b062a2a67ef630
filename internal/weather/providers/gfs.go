package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/windserver/internal/weather"
)

// Resolution selects the GFS grid spacing.
type Resolution string

const (
	ResolutionHalfDegree Resolution = "0.5"
	ResolutionOneDegree  Resolution = "1"
)

// ParseResolution accepts the degree value or the NOMADS product suffix.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "", "0.5", "0.50", "0p50":
		return ResolutionHalfDegree, nil
	case "1", "1.0", "1p00":
		return ResolutionOneDegree, nil
	}
	return "", fmt.Errorf("unsupported resolution %q (want 0.5 or 1)", s)
}

// product is the NOMADS product name for the resolution, e.g. "0p50".
func (r Resolution) product() string {
	if r == ResolutionOneDegree {
		return "1p00"
	}
	return "0p50"
}

// DefaultBaseURL is the NOMADS grib filter endpoint for the resolution.
func (r Resolution) DefaultBaseURL() string {
	return fmt.Sprintf("https://nomads.ncep.noaa.gov/cgi-bin/filter_gfs_%s.pl", r.product())
}

// fileName is the GRIB2 file name for one run and forecast hour.
func (r Resolution) fileName(id weather.Identifier) string {
	if r == ResolutionOneDegree {
		return fmt.Sprintf("gfs.t%sz.pgrb2.1p00.f%s", id.Hour(), id.Forecast())
	}
	return fmt.Sprintf("gfs.t%sz.pgrb2full.0p50.f%s", id.Hour(), id.Forecast())
}

// GFSConfig selects which subset of the global forecast to download.
type GFSConfig struct {
	BaseURL    string
	Resolution Resolution
	Wind       bool
	Temp       bool
	MaxRetries int
}

// GFSProvider downloads GRIB2 subsets from the NOMADS grib filter.
type GFSProvider struct {
	name    string
	cfg     GFSConfig
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewGFSProvider(client *http.Client, cfg GFSConfig) *GFSProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nomads",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.Resolution.DefaultBaseURL()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &GFSProvider{
		name: "nomads-gfs-" + cfg.Resolution.product(),
		cfg:  cfg,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

func (p *GFSProvider) Name() string {
	return p.name
}

// URL builds the grib filter request for id.
func (p *GFSProvider) URL(id weather.Identifier) (string, error) {
	u, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	values := u.Query()
	values.Set("file", p.cfg.Resolution.fileName(id))
	if p.cfg.Temp {
		values.Set("lev_surface", "on")
		values.Set("var_TMP", "on")
	}
	if p.cfg.Wind {
		values.Set("lev_10_m_above_ground", "on")
		values.Set("var_UGRD", "on")
		values.Set("var_VGRD", "on")
	}
	values.Set("leftlon", "0")
	values.Set("rightlon", "360")
	values.Set("toplat", "90")
	values.Set("bottomlat", "-90")
	values.Set("dir", fmt.Sprintf("/gfs.%s/%s", id.Date(), id.Hour()))

	u.RawQuery = values.Encode()
	return u.String(), nil
}

// Fetch downloads the raw payload for id. The caller must close the body.
func (p *GFSProvider) Fetch(ctx context.Context, id weather.Identifier) (io.ReadCloser, error) {
	u, err := p.URL(id)
	if err != nil {
		return nil, err
	}

	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
