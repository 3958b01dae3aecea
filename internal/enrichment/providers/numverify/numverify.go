// Package numverify adapts the numverify validation API as the phone source.
package numverify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
)

const (
	Name           = "numverify"
	DefaultBaseURL = "http://apilayer.net"
)

type validateResponse struct {
	Success *bool `json:"success"`
	Error   *struct {
		Code int    `json:"code"`
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error"`

	Valid               bool   `json:"valid"`
	Number              string `json:"number"`
	InternationalFormat string `json:"international_format"`
	CountryPrefix       string `json:"country_prefix"`
	CountryCode         string `json:"country_code"`
	CountryName         string `json:"country_name"`
	Location            string `json:"location"`
	Carrier             string `json:"carrier"`
	LineType            string `json:"line_type"`
}

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

func (a *Adapter) Descriptor() providers.Descriptor {
	return providers.Descriptor{
		Name:               Name,
		Kinds:              []domain.IdentifierKind{domain.KindPhone},
		Protocol:           providers.ProtocolHTTP,
		RequiresCredential: true,
		CredentialKey:      Name,
	}
}

func (a *Adapter) Lookup(ctx context.Context, id domain.Identifier, credential string) (providers.Result, error) {
	if credential == "" {
		return providers.Result{}, providers.NewProviderError(providers.ErrorAuthentication, Name, "access key missing", providers.ErrMissingCredential)
	}
	q := url.Values{}
	q.Set("access_key", credential)
	q.Set("number", domain.PhoneDigits(id.Value))

	var resp validateResponse
	if err := a.http.GetJSON(ctx, a.baseURL+"/api/validate?"+q.Encode(), nil, &resp); err != nil {
		return providers.Result{}, err
	}
	// apilayer reports failures in a 200 body.
	if resp.Success != nil && !*resp.Success && resp.Error != nil {
		return providers.Result{}, apiError(resp.Error.Code, resp.Error.Type, resp.Error.Info)
	}

	attrs := domain.Attributes{"valid": resp.Valid}
	if resp.Valid {
		attrs["carrier"] = resp.Carrier
		attrs["line_type"] = resp.LineType
		attrs["country_code"] = resp.CountryPrefix
		attrs["country_iso"] = resp.CountryCode
		attrs["country"] = resp.CountryName
		attrs["location"] = resp.Location
		attrs["international_format"] = resp.InternationalFormat
	}
	return providers.Result{Attributes: attrs}, nil
}

func apiError(code int, typ, info string) error {
	msg := fmt.Sprintf("%d %s: %s", code, typ, info)
	switch code {
	case 101, 102, 103:
		// missing, invalid or inactive access key
		return providers.NewProviderError(providers.ErrorAuthentication, Name, msg, nil)
	case 104:
		return providers.NewProviderError(providers.ErrorRateLimited, Name, msg, nil)
	case 210, 211:
		return providers.NewProviderError(providers.ErrorBadData, Name, msg, nil)
	default:
		return providers.NewProviderError(providers.ErrorContractMismatch, Name, msg, nil)
	}
}
