package domain

import "time"

// Trip is a single scheduled vehicle run, keyed by the id assigned by the
// routing API (e.g. "HSL:1234_20230101_Mo_1_1").
type Trip struct {
	ID             string    `json:"id"`
	RoutePatternID string    `json:"route_pattern_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// RemoteTrip is the subset of the routing API's trip object we read.
// Fields are pointers so that a missing pattern is distinguishable from an empty one.
type RemoteTrip struct {
	Pattern *RemotePattern `json:"pattern"`
}

// RemotePattern identifies the stop sequence a trip follows.
type RemotePattern struct {
	Code string `json:"code"`
}
