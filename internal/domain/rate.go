package domain

import "strings"

const (
	MinRateValue = 1
	MaxRateValue = 10
)

// Rate is one user's rating of one object. The (UserID, ObjectID) pair is its identity.
type Rate struct {
	UserID   string `json:"userId"`
	ObjectID string `json:"objectId"`
	Value    int    `json:"value"`
}

// rateIDEscaper keeps "_" out of each part so the separator stays unambiguous.
var rateIDEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// RateID derives the document id for a (user, object) pair so that at most
// one Rate can exist per pair. Ids without "_" or "%" come out as
// "<userId>_<objectId>".
func RateID(userID, objectID string) string {
	return rateIDEscaper.Replace(userID) + "_" + rateIDEscaper.Replace(objectID)
}

func ValidRateValue(v int) bool { return v >= MinRateValue && v <= MaxRateValue }

// RatingResult is the outcome of a successful rating submission.
type RatingResult struct {
	ObjectID    string  `json:"objectId"`
	NewAverage  float64 `json:"newAverage"`
	RatingCount int     `json:"ratingCount"`
	OwnerID     string  `json:"ownerId"`
	PointDelta  int     `json:"pointDelta"`
	OwnerPoints int     `json:"ownerPoints"`
}
