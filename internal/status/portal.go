package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clearwatch/internal/config"
	"clearwatch/internal/declaration"
	"clearwatch/internal/services"
)

// PortalSource queries the customs portal status endpoint. This is the
// primary source: it can distinguish cleared from transfer and reports
// attached barcode images.
type PortalSource struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewPortalSource builds the primary status source.
func NewPortalSource(cfg *config.Config) (*PortalSource, error) {
	base := strings.TrimSpace(cfg.Portal.BaseURL)
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "status", "init", "portal.base_url is not configured", nil)
	}
	timeout := time.Duration(cfg.Portal.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PortalSource{
		baseURL:   strings.TrimRight(base, "/"),
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.Portal.UserAgent,
	}, nil
}

// Name implements Source.
func (s *PortalSource) Name() string { return "portal" }

type portalResponse struct {
	Status      string   `json:"status"`
	Error       string   `json:"error"`
	CompanyName string   `json:"company_name"`
	Barcodes    []string `json:"barcodes"`
}

// Query implements Source.
func (s *PortalSource) Query(ctx context.Context, q Query) (Result, error) {
	params := url.Values{}
	params.Set("tenant", q.TenantCode)
	params.Set("number", q.DeclarationNumber)
	params.Set("date", declaration.FormatDate(q.Date))
	if q.CustomsCode != "" {
		params.Set("office", q.CustomsCode)
	}
	endpoint := fmt.Sprintf("%s/status?%s", s.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, services.Wrap(services.ErrData, "status", "query", "build request", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, services.Wrap(services.ErrConnectivity, "status", "query", q.DeclarationNumber, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, services.Wrap(services.ErrConnectivity, "status", "query", "read body", err)
	}
	if resp.StatusCode >= 300 {
		return Result{}, services.Wrap(services.ErrConnectivity, "status", "query",
			fmt.Sprintf("%s: portal returned %d", q.DeclarationNumber, resp.StatusCode), nil)
	}

	var parsed portalResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, services.Wrap(services.ErrData, "status", "query", "decode response", err)
	}

	result := Result{
		IsValid:          true,
		StatusText:       strings.TrimSpace(parsed.Status),
		CompanyName:      strings.TrimSpace(parsed.CompanyName),
		HasBarcodeImages: len(parsed.Barcodes) > 0,
		Raw:              string(body),
	}
	if parsed.Error != "" {
		result.HasError = true
		result.ErrorText = parsed.Error
	}
	return result, nil
}
