// Package abuseipdb adapts the AbuseIPDB check API as the IP abuse-reporting source.
package abuseipdb

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
)

const (
	Name           = "abuseipdb"
	DefaultBaseURL = "https://api.abuseipdb.com"

	maxAgeInDays = "90"
)

type checkResponse struct {
	Data *struct {
		IPAddress            string `json:"ipAddress"`
		AbuseConfidenceScore *int   `json:"abuseConfidenceScore"`
		CountryCode          string `json:"countryCode"`
		UsageType            string `json:"usageType"`
		ISP                  string `json:"isp"`
		Domain               string `json:"domain"`
		TotalReports         int    `json:"totalReports"`
		LastReportedAt       string `json:"lastReportedAt"`
		IsTor                bool   `json:"isTor"`
		IsWhitelisted        *bool  `json:"isWhitelisted"`
	} `json:"data"`
}

// Adapter queries /api/v2/check.
type Adapter struct {
	baseURL string
	http    *providers.HTTPClient
}

func New(baseURL string, client *http.Client) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    providers.NewHTTPClient(Name, client),
	}
}

// Descriptor marks risk_score authoritative: the abuse confidence score
// replaces any heuristic score set earlier in the pipeline.
func (a *Adapter) Descriptor() providers.Descriptor {
	return providers.Descriptor{
		Name:               Name,
		Kinds:              []domain.IdentifierKind{domain.KindIP},
		Protocol:           providers.ProtocolHTTP,
		RequiresCredential: true,
		CredentialKey:      Name,
		Authoritative:      []string{"risk_score"},
	}
}

func (a *Adapter) Lookup(ctx context.Context, id domain.Identifier, credential string) (providers.Result, error) {
	if credential == "" {
		return providers.Result{}, providers.NewProviderError(providers.ErrorAuthentication, Name, "api key missing", providers.ErrMissingCredential)
	}
	q := url.Values{}
	q.Set("ipAddress", id.Value)
	q.Set("maxAgeInDays", maxAgeInDays)

	var resp checkResponse
	err := a.http.GetJSON(ctx, a.baseURL+"/api/v2/check?"+q.Encode(), map[string]string{"Key": credential}, &resp)
	if err != nil {
		return providers.Result{}, err
	}
	if resp.Data == nil {
		return providers.Result{}, providers.NewProviderError(providers.ErrorContractMismatch, Name, "response has no data object", nil)
	}

	d := resp.Data
	attrs := domain.Attributes{
		"abuse_reports":    d.TotalReports,
		"last_reported_at": d.LastReportedAt,
		"usage_type":       d.UsageType,
		"isp":              d.ISP,
		"domain":           d.Domain,
		"country_code":     d.CountryCode,
		"tor":              d.IsTor,
	}
	if d.AbuseConfidenceScore != nil {
		attrs["risk_score"] = *d.AbuseConfidenceScore
	}
	if d.IsWhitelisted != nil {
		attrs["whitelisted"] = *d.IsWhitelisted
	}
	return providers.Result{Attributes: attrs}, nil
}
