package geocode

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// placeTypePriority orders the place classifications preferred for labels,
// most specific first.
var placeTypePriority = []string{"neighborhood", "locality", "place", "district", "region"}

// ReverseResolve returns a human-readable label for a coordinate.
//
// The first candidate matching a preferred place type (in priority order) wins.
// Its label is composed as "<name> / <locality-or-region>" when a distinguishing
// context exists, else the bare name. With no preferred match, the first
// non-address candidate's name is used. With nothing usable, a coordinate
// string is returned.
func (r *resolver) ReverseResolve(ctx context.Context, lat, lng float64) (string, error) {
	params := url.Values{
		"types": {strings.Join(placeTypePriority, ",")},
		"limit": {"5"},
	}

	search := fmt.Sprintf("%f,%f", lng, lat)
	resp, err := r.query(ctx, search, params)
	if err != nil {
		return "", err
	}

	label := labelFromFeatures(resp.Features)
	if label == "" {
		label = FallbackLabel(lat, lng)
		zap.L().Debug("reverse geocode: no usable candidate",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
		)
	}
	return label, nil
}

// FallbackLabel formats a coordinate-string label for when reverse
// geocoding yields nothing usable.
func FallbackLabel(lat, lng float64) string {
	return fmt.Sprintf("Near %.2f, %.2f", lat, lng)
}

// labelFromFeatures applies the place-type priority policy to the candidate
// list. Returns "" when no candidate is usable.
func labelFromFeatures(features []mapboxFeature) string {
	for _, wanted := range placeTypePriority {
		for _, f := range features {
			if !hasPlaceType(f, wanted) {
				continue
			}
			return composeLabel(f)
		}
	}

	// No preferred classification matched; settle for the first
	// candidate that is not a street address.
	for _, f := range features {
		if hasPlaceType(f, "address") {
			continue
		}
		if f.Text != "" {
			return f.Text
		}
	}

	return ""
}

// composeLabel pairs the feature name with a distinguishing locality or
// region from its context, when one exists and differs from the name.
func composeLabel(f mapboxFeature) string {
	name := f.Text
	if name == "" {
		name = f.PlaceName
	}
	if name == "" {
		return ""
	}

	for _, prefix := range []string{"locality.", "place.", "region."} {
		for _, c := range f.Context {
			if !strings.HasPrefix(c.ID, prefix) {
				continue
			}
			if c.Text != "" && c.Text != name {
				return name + " / " + c.Text
			}
		}
	}

	return name
}

// hasPlaceType reports whether the feature carries the given classification.
func hasPlaceType(f mapboxFeature, t string) bool {
	for _, pt := range f.PlaceType {
		if pt == t {
			return true
		}
	}
	return false
}
