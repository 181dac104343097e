package domain

// Filters is an ephemeral query over a fetched object list. Zero values are wildcards.
type Filters struct {
	Author    string  // case-insensitive exact match
	Type      string  // exact match
	Subject   string  // exact match
	MinRating int     // 0 = any
	Start     *int64  // inclusive, ms since epoch
	End       *int64  // inclusive, ms since epoch
	RadiusKm  float64 // <= 0 disables the distance check
}

// IsZero reports whether every criterion is a wildcard.
func (f Filters) IsZero() bool {
	return f.Author == "" && f.Type == "" && f.Subject == "" &&
		f.MinRating == 0 && f.Start == nil && f.End == nil && f.RadiusKm <= 0
}
