// Package ipapi adapts the public ip-api.com geolocation endpoint. It needs no
// key and only runs when the paid sources left the country unknown.
package ipapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
)

const (
	Name           = "ipapi"
	DefaultBaseURL = "http://ip-api.com"
)

// Geolocation is the decoded public geolocation answer.
type Geolocation struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Country     string   `json:"country"`
	CountryCode string   `json:"countryCode"`
	City        string   `json:"city"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Timezone    string   `json:"timezone"`
	ISP         string   `json:"isp"`
	Org         string   `json:"org"`
	AS          string   `json:"as"`
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
		Name:        Name,
		Kinds:       []domain.IdentifierKind{domain.KindIP},
		Protocol:    providers.ProtocolHTTP,
		FallbackFor: []string{"country"},
	}
}

func (a *Adapter) Lookup(ctx context.Context, id domain.Identifier, _ string) (providers.Result, error) {
	geo, err := a.Geolocate(ctx, id.Value)
	if err != nil {
		return providers.Result{}, err
	}

	org := geo.Org
	if org == "" {
		org = geo.ISP
	}
	attrs := domain.Attributes{
		"country":      geo.Country,
		"country_code": geo.CountryCode,
		"city":         geo.City,
		"isp":          geo.ISP,
		"organization": org,
		"timezone":     geo.Timezone,
		"asn":          geo.AS,
	}
	if geo.Lat != nil && geo.Lon != nil {
		attrs["lat"] = *geo.Lat
		attrs["lon"] = *geo.Lon
	}

	res := providers.Result{Attributes: attrs}
	res.Nodes, res.Edges = GeoNodes(geo)
	return res, nil
}

// Geolocate resolves ip to a coarse location. It is shared with the
// ip-geolocate expansion plugin.
func (a *Adapter) Geolocate(ctx context.Context, ip string) (Geolocation, error) {
	var geo Geolocation
	if err := a.http.GetJSON(ctx, a.baseURL+"/json/"+url.PathEscape(ip), nil, &geo); err != nil {
		return geo, err
	}
	if geo.Status == "fail" {
		category := providers.ErrorBadData
		if strings.Contains(geo.Message, "range") {
			// private range / reserved range
			category = providers.ErrorNotFound
		}
		return geo, providers.NewProviderError(category, Name, geo.Message, nil)
	}
	return geo, nil
}

// GeoNodes proposes a location node and an ISP company node linked to the origin.
func GeoNodes(geo Geolocation) ([]domain.ProposedNode, []domain.ProposedEdge) {
	var (
		nodes []domain.ProposedNode
		edges []domain.ProposedEdge
	)
	if geo.Country != "" {
		loc := map[string]any{"city": geo.City, "country": geo.Country, "timezone": geo.Timezone}
		if geo.Lat != nil && geo.Lon != nil {
			loc["lat"], loc["lon"] = *geo.Lat, *geo.Lon
		}
		nodes = append(nodes, domain.ProposedNode{Ref: "location", Type: domain.EntityLocation, Data: loc, Label: geo.Country})
		edges = append(edges, domain.ProposedEdge{Source: domain.Origin(), Target: domain.ByRef("location")})
	}
	if geo.ISP != "" {
		nodes = append(nodes, domain.ProposedNode{
			Ref:   "company",
			Type:  domain.EntityCompany,
			Data:  map[string]any{"name": geo.ISP, "asn": geo.AS, "isp": geo.ISP},
			Label: geo.ISP,
		})
		edges = append(edges, domain.ProposedEdge{Source: domain.Origin(), Target: domain.ByRef("company")})
	}
	return nodes, edges
}
