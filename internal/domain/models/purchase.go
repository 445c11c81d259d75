package models

// PurchaseRequest is the body accepted by the dashboard and forwarded to the
// simulator's purchase endpoint.
type PurchaseRequest struct {
	Type   string  `json:"type" validate:"required,oneof=wind solar"`
	Amount float64 `json:"amount" validate:"gt=0"`
}

// PurchaseResult mirrors the simulator's purchase response.
type PurchaseResult struct {
	Success bool    `json:"success"`
	Storage float64 `json:"storage"`
}

// SamplesQuery are the query parameters of the samples listing.
type SamplesQuery struct {
	Limit int `query:"limit" default:"0" validate:"gte=0,lte=1000"`
}

// HistoryQuery selects persisted samples by arrival time.
type HistoryQuery struct {
	From  string `query:"from"`
	To    string `query:"to"`
	Limit int    `query:"limit" default:"100" validate:"gte=1,lte=5000"`
}

// LatestSample is the latest-sample payload. Source is "window", "cache" or
// "default".
type LatestSample struct {
	Sample Sample `json:"sample"`
	Source string `json:"source"`
}

// ClockLabel is the display clock payload.
type ClockLabel struct {
	Label string `json:"label"`
}
