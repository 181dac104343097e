package domain

type User struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	FullName string  `json:"fullname"`
	Email    string  `json:"email"`
	Phone    string  `json:"phoneNumber"`
	PhotoURL *string `json:"photoUrl,omitempty"`
	Points   int     `json:"points"`
}

// LeaderboardEntry is a ranked user, 1-based.
type LeaderboardEntry struct {
	Rank int  `json:"rank"`
	User User `json:"user"`
}
