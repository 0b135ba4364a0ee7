package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const geocodingPath = "/geocoding/v5/mapbox.places/"

// mapboxResponse is the JSON response from the Mapbox Geocoding API.
type mapboxResponse struct {
	Features []mapboxFeature `json:"features"`
	Message  string          `json:"message"`
}

type mapboxFeature struct {
	Text      string          `json:"text"`
	PlaceName string          `json:"place_name"`
	PlaceType []string        `json:"place_type"`
	Center    []float64       `json:"center"` // [lng, lat]
	Context   []mapboxContext `json:"context"`
}

type mapboxContext struct {
	ID   string `json:"id"` // e.g. "locality.123", "region.456"
	Text string `json:"text"`
}

// Resolve geocodes a single free-text address. Unresolvable addresses return
// an unmatched Result with a reason; transport and decode problems return errors.
func (r *resolver) Resolve(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return &Result{Matched: false, Reason: "empty address"}, nil
	}

	resp, err := r.query(ctx, address, nil)
	if err != nil {
		return nil, err
	}

	if len(resp.Features) == 0 {
		reason := "no match for address"
		if resp.Message != "" {
			reason = resp.Message
		}
		return &Result{Matched: false, Reason: reason}, nil
	}

	f := resp.Features[0]
	if len(f.Center) < 2 {
		return &Result{Matched: false, Reason: "provider returned no coordinates"}, nil
	}

	return &Result{
		Latitude:  f.Center[1],
		Longitude: f.Center[0],
		PlaceName: f.PlaceName,
		Matched:   true,
	}, nil
}

// query performs one Geocoding API request for the given search text.
func (r *resolver) query(ctx context.Context, search string, params url.Values) (*mapboxResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", r.token)
	if params.Get("limit") == "" {
		params.Set("limit", "1")
	}

	reqURL := r.baseURL + geocodingPath + url.PathEscape(search) + ".json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var mr mapboxResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	return &mr, nil
}
