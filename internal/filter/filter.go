// Package filter narrows an already fetched object list in memory.
package filter

import (
	"strings"

	"gighop/internal/domain"
	"gighop/internal/geo"
)

// Apply keeps the objects that satisfy every active criterion of f, in input
// order. ref is the caller's position and only matters when f.RadiusKm > 0.
func Apply(objects []domain.MapObject, f domain.Filters, ref domain.Coordinate) []domain.MapObject {
	if f.IsZero() {
		return objects
	}
	out := make([]domain.MapObject, 0, len(objects))
	for _, o := range objects {
		if Match(o, f, ref) {
			out = append(out, o)
		}
	}
	return out
}

// Match reports whether a single object passes f.
func Match(o domain.MapObject, f domain.Filters, ref domain.Coordinate) bool {
	if f.Author != "" && !strings.EqualFold(o.Author, f.Author) {
		return false
	}
	if f.Type != "" && o.Type != f.Type {
		return false
	}
	if f.Subject != "" && o.Subject != f.Subject {
		return false
	}
	if f.MinRating != 0 && o.RatingOrZero() < float64(f.MinRating) {
		return false
	}
	if f.Start != nil && o.Timestamp < *f.Start {
		return false
	}
	if f.End != nil && o.Timestamp > *f.End {
		return false
	}
	// written so a NaN distance fails the check
	if f.RadiusKm > 0 && !(geo.DistanceMeters(ref, o.Location) <= f.RadiusKm*1000) {
		return false
	}
	return true
}
