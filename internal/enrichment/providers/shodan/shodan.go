// Package shodan adapts the Shodan host API as the IP reputation source.
package shodan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
)

const (
	Name           = "shodan"
	DefaultBaseURL = "https://api.shodan.io"
)

type hostResponse struct {
	IPStr       string   `json:"ip_str"`
	CountryName string   `json:"country_name"`
	City        string   `json:"city"`
	ASN         string   `json:"asn"`
	ISP         string   `json:"isp"`
	Org         string   `json:"org"`
	OS          string   `json:"os"`
	Ports       []int    `json:"ports"`
	Vulns       []string `json:"vulns"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Hostnames   []string `json:"hostnames"`
	LastUpdate  string   `json:"last_update"`
	Data        []struct {
		Port      int    `json:"port"`
		Transport string `json:"transport"`
		Product   string `json:"product"`
	} `json:"data"`
}

// Adapter queries /shodan/host/{ip}.
type Adapter struct {
	baseURL string
	http    *providers.HTTPClient
}

// New returns a Shodan adapter. An empty baseURL uses the public API.
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
		Kinds:              []domain.IdentifierKind{domain.KindIP},
		Protocol:           providers.ProtocolHTTP,
		RequiresCredential: true,
		CredentialKey:      Name,
	}
}

func (a *Adapter) Lookup(ctx context.Context, id domain.Identifier, credential string) (providers.Result, error) {
	if credential == "" {
		return providers.Result{}, providers.NewProviderError(providers.ErrorAuthentication, Name, "api key missing", providers.ErrMissingCredential)
	}
	endpoint := fmt.Sprintf("%s/shodan/host/%s?key=%s", a.baseURL, url.PathEscape(id.Value), url.QueryEscape(credential))

	var host hostResponse
	if err := a.http.GetJSON(ctx, endpoint, nil, &host); err != nil {
		return providers.Result{}, err
	}
	return toResult(host), nil
}

func toResult(h hostResponse) providers.Result {
	org := h.Org
	if org == "" {
		org = h.ISP
	}
	ports := joinPorts(h.Ports)
	vulns := strings.Join(h.Vulns, ", ")

	attrs := domain.Attributes{
		"asn":          h.ASN,
		"isp":          h.ISP,
		"organization": org,
		"country":      h.CountryName,
		"city":         h.City,
		"os":           h.OS,
		"ports":        ports,
		"vulns":        vulns,
		"hostnames":    strings.Join(h.Hostnames, ", "),
		"last_update":  h.LastUpdate,
	}
	if h.Latitude != nil && h.Longitude != nil {
		attrs["lat"] = *h.Latitude
		attrs["lon"] = *h.Longitude
	}

	var res providers.Result
	res.Attributes = attrs

	if h.City != "" || h.CountryName != "" {
		loc := map[string]any{"city": h.City, "country": h.CountryName}
		if h.Latitude != nil && h.Longitude != nil {
			loc["lat"], loc["lon"] = *h.Latitude, *h.Longitude
		}
		res.Nodes = append(res.Nodes, domain.ProposedNode{
			Ref:   "location",
			Type:  domain.EntityLocation,
			Data:  loc,
			Label: strings.Trim(h.City+", "+h.CountryName, ", "),
		})
		res.Edges = append(res.Edges, domain.ProposedEdge{Source: domain.Origin(), Target: domain.ByRef("location")})
	}

	if org != "" {
		res.Nodes = append(res.Nodes, domain.ProposedNode{
			Ref:   "company",
			Type:  domain.EntityCompany,
			Data:  map[string]any{"name": org, "asn": h.ASN, "isp": h.ISP},
			Label: org,
		})
		res.Edges = append(res.Edges, domain.ProposedEdge{Source: domain.Origin(), Target: domain.ByRef("company")})
	}

	// Vulnerabilities ride on the server node rather than a node of their own.
	if len(h.Ports) > 0 {
		details := make([]string, 0, len(h.Data))
		for _, s := range h.Data {
			details = append(details, strings.TrimSpace(fmt.Sprintf("%d/%s %s", s.Port, s.Transport, s.Product)))
		}
		server := map[string]any{"ports": ports, "os": h.OS, "details": strings.Join(details, "\n")}
		if vulns != "" {
			server["vulns"] = vulns
		}
		res.Nodes = append(res.Nodes, domain.ProposedNode{
			Ref:   "server",
			Type:  domain.EntityServer,
			Data:  server,
			Label: "Ports: " + portLabel(h.Ports),
		})
		res.Edges = append(res.Edges, domain.ProposedEdge{Source: domain.Origin(), Target: domain.ByRef("server")})
	}
	return res
}

func joinPorts(ports []int) string {
	s := make([]string, len(ports))
	for i, p := range ports {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ", ")
}

func portLabel(ports []int) string {
	if len(ports) <= 5 {
		return joinPorts(ports)
	}
	return joinPorts(ports[:5]) + "..."
}
