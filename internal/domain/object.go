package domain

// Coordinate is a WGS84 point in signed decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapObject is a point of interest (gig, venue, event) pinned to a coordinate.
type MapObject struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Location    Coordinate `json:"location"`
	PhotoURL    *string    `json:"photoUrl,omitempty"`
	Author      string     `json:"author"`
	OwnerID     string     `json:"ownerId"`
	Type        string     `json:"type"`
	Rating      *float64   `json:"rating,omitempty"` // nil until first rated
	Timestamp   int64      `json:"timestamp"`        // ms since epoch
}

// RatingOrZero is the value used by filters when the object was never rated.
func (o MapObject) RatingOrZero() float64 {
	if o.Rating == nil {
		return 0
	}
	return *o.Rating
}

// ObjectTypes is the fixed category list offered to clients.
var ObjectTypes = []string{"Rock", "Rap", "Jazz", "Folk", "Techno", "Pop"}

func IsObjectType(t string) bool {
	for _, v := range ObjectTypes {
		if v == t {
			return true
		}
	}
	return false
}
