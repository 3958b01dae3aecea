// Package hunter adapts the Hunter email verifier as the mailbox verification source.
package hunter

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
)

const (
	Name           = "hunter"
	DefaultBaseURL = "https://api.hunter.io"
)

type verifierResponse struct {
	Data *struct {
		Status     string `json:"status"`
		Result     string `json:"result"`
		Score      *int   `json:"score"`
		Disposable bool   `json:"disposable"`
		Webmail    bool   `json:"webmail"`
		MXRecords  bool   `json:"mx_records"`
		SMTPServer bool   `json:"smtp_server"`
		SMTPCheck  bool   `json:"smtp_check"`
		AcceptAll  bool   `json:"accept_all"`
		Block      bool   `json:"block"`
		Gibberish  bool   `json:"gibberish"`
	} `json:"data"`
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
		Kinds:              []domain.IdentifierKind{domain.KindEmail},
		Protocol:           providers.ProtocolHTTP,
		RequiresCredential: true,
		CredentialKey:      Name,
	}
}

func (a *Adapter) Lookup(ctx context.Context, id domain.Identifier, credential string) (providers.Result, error) {
	if credential == "" {
		return providers.Result{}, providers.NewProviderError(providers.ErrorAuthentication, Name, "api key missing", providers.ErrMissingCredential)
	}
	q := url.Values{}
	q.Set("email", id.Value)
	q.Set("api_key", credential)

	var resp verifierResponse
	if err := a.http.GetJSON(ctx, a.baseURL+"/v2/email-verifier?"+q.Encode(), nil, &resp); err != nil {
		return providers.Result{}, err
	}
	if resp.Data == nil {
		return providers.Result{}, providers.NewProviderError(providers.ErrorContractMismatch, Name, "response has no data object", nil)
	}

	d := resp.Data
	attrs := domain.Attributes{
		"deliverability":      d.Result,
		"verification_status": d.Status,
		"disposable":          d.Disposable,
		"webmail":             d.Webmail,
		"mx_found":            d.MXRecords,
		"smtp_check":          d.SMTPCheck,
		"accept_all":          d.AcceptAll,
		"gibberish":           d.Gibberish,
	}
	// Hunter scores deliverability confidence; risk is its complement.
	if d.Score != nil {
		attrs["verification_score"] = *d.Score
		attrs["risk_score"] = 100 - *d.Score
	}
	return providers.Result{Attributes: attrs}, nil
}
