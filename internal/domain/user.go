package domain

import "time"

// Profile is the slice of the signed-in user the checkout needs for defaults.
type Profile struct {
	UserID  int64  `json:"userId"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type LocationRecord struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Address    *string   `json:"address,omitempty"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// Notice is a short user-facing message; never a raw backend error.
type Notice struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
