// Package geo captures the request geolocation hints Cloudflare attaches to
// proxied requests. It is pure enrichment: no lookups, no state.
package geo

import (
	"context"
	"net/http"
	"strconv"
)

// Location holds the per-request geolocation fields.
type Location struct {
	Country   string
	City      string
	Region    string
	Timezone  string
	Latitude  float64
	Longitude float64
}

// IsZero reports whether no geolocation hint was present on the request.
func (l Location) IsZero() bool {
	return l == Location{}
}

type ctxKey struct{}

// WithLocation returns a derived context carrying the location.
func WithLocation(ctx context.Context, loc Location) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

// FromContext extracts the location and a boolean indicating presence.
func FromContext(ctx context.Context) (Location, bool) {
	loc, ok := ctx.Value(ctxKey{}).(Location)
	return loc, ok
}

// FromRequest reads the Cloudflare geolocation headers.
func FromRequest(r *http.Request) Location {
	loc := Location{
		Country:  r.Header.Get("CF-IPCountry"),
		City:     r.Header.Get("CF-IPCity"),
		Region:   r.Header.Get("CF-Region"),
		Timezone: r.Header.Get("CF-Timezone"),
	}
	if v, err := strconv.ParseFloat(r.Header.Get("CF-IPLatitude"), 64); err == nil {
		loc.Latitude = v
	}
	if v, err := strconv.ParseFloat(r.Header.Get("CF-IPLongitude"), 64); err == nil {
		loc.Longitude = v
	}
	return loc
}

// Middleware attaches the request's location to the context when any
// geolocation header is present.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loc := FromRequest(r)
		if !loc.IsZero() {
			r = r.WithContext(WithLocation(r.Context(), loc))
		}
		next.ServeHTTP(w, r)
	})
}

// EnrichSession merges the context's location into a session payload under
// conventional keys. Existing keys are not overwritten.
func EnrichSession(ctx context.Context, session map[string]any) {
	loc, ok := FromContext(ctx)
	if !ok || session == nil {
		return
	}

	set := func(key string, value any) {
		if _, exists := session[key]; !exists {
			session[key] = value
		}
	}

	if loc.Country != "" {
		set("country", loc.Country)
	}
	if loc.City != "" {
		set("city", loc.City)
	}
	if loc.Region != "" {
		set("region", loc.Region)
	}
	if loc.Timezone != "" {
		set("timezone", loc.Timezone)
	}
	if loc.Latitude != 0 || loc.Longitude != 0 {
		set("latitude", loc.Latitude)
		set("longitude", loc.Longitude)
	}
}
