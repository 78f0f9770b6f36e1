// Package barcode retrieves the companion barcode document for an eligible
// declaration and saves it to disk.
package barcode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clearwatch/internal/config"
	"clearwatch/internal/declaration"
	"clearwatch/internal/logging"
	"clearwatch/internal/services"
)

// Retriever fetches the barcode document for a declaration. A nil or empty
// result means the document is not (yet) available; that is a per-item
// failure, never a batch-fatal condition.
type Retriever interface {
	Retrieve(ctx context.Context, d declaration.Declaration) ([]byte, error)
}

// PortalRetriever downloads barcode documents from the customs portal.
type PortalRetriever struct {
	baseURL   string
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewPortalRetriever builds a retriever against the configured portal.
func NewPortalRetriever(cfg *config.Config, logger *slog.Logger) (*PortalRetriever, error) {
	base := strings.TrimSpace(cfg.Portal.BaseURL)
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "barcode", "init", "portal.base_url is not configured", nil)
	}
	timeout := time.Duration(cfg.Portal.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PortalRetriever{
		baseURL:   strings.TrimRight(base, "/"),
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.Portal.UserAgent,
		logger:    logging.WithComponent(logger, "barcode"),
	}, nil
}

// Retrieve implements Retriever.
func (r *PortalRetriever) Retrieve(ctx context.Context, d declaration.Declaration) ([]byte, error) {
	query := url.Values{}
	query.Set("tenant", d.TenantCode)
	query.Set("number", d.Number)
	query.Set("date", declaration.FormatDate(d.Date))
	if d.CustomsOffice != "" {
		query.Set("office", d.CustomsOffice)
	}
	endpoint := fmt.Sprintf("%s/barcode?%s", r.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrData, "barcode", "retrieve", "build request", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrConnectivity, "barcode", "retrieve", d.Number, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Not available yet. Treated as an empty result, not an error.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, services.Wrap(services.ErrConnectivity, "barcode", "retrieve",
			fmt.Sprintf("%s: portal returned %d: %s", d.Number, resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrConnectivity, "barcode", "retrieve", "read body", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}
