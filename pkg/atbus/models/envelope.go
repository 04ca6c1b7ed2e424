package models

// Resource is one element of the API "data" array
type Resource[A any] struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes A      `json:"attributes"`
}

// Envelope is a validated API response of a single kind
type Envelope[A any] struct {
	Kind Kind
	Data []Resource[A]
	// Next is the pagination link of the page, empty on the last page
	Next string
	// Dropped counts records removed under the drop-invalid policy
	Dropped int
}

type StopEnvelope = Envelope[StopAttributes]

type TripEnvelope = Envelope[TripAttributes]

// Links is the optional JSON:API pagination block
type Links struct {
	Next string `json:"next"`
}
