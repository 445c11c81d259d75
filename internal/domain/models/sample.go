package models

import "time"

// Action is the recommended trading action for the storage.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// DefaultReason is shown until the producer sends a recommendation.
const DefaultReason = "Waiting for data..."

// ParseAction maps a wire value onto an Action. Unknown values are not an Action.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionBuy, ActionSell, ActionHold:
		return Action(s), true
	default:
		return "", false
	}
}

// EnergyFlows groups wind/solar generation and household consumption in kWh.
type EnergyFlows struct {
	Wind        float64 `json:"wind"`
	Solar       float64 `json:"solar"`
	Consumption float64 `json:"consumption"`
}

type Recommendation struct {
	Action     Action  `json:"action"`
	Amount     float64 `json:"amount"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type StorageStats struct {
	Current float64 `json:"current"`
	Min24h  float64 `json:"min_24h"`
	Max24h  float64 `json:"max_24h"`
}

// Sample is one normalized snapshot of the energy feed. It is built once by the
// normalizer and never mutated afterwards.
type Sample struct {
	Datetime           string         `json:"datetime"`
	Storage            float64        `json:"storage"`
	Real               EnergyFlows    `json:"real"`
	Predicted          EnergyFlows    `json:"predicted"`
	FutureStorageCurve []float64      `json:"future_storage_curve"`
	Recommendation     Recommendation `json:"recommendation"`
	StorageStats       StorageStats   `json:"storage_stats"`

	MinFutureStorage float64 `json:"min_future_storage"`
	MaxFutureStorage float64 `json:"max_future_storage"`
	StoragePercent   float64 `json:"storage_percent"`
	Min24hPercent    float64 `json:"min_24h_percent"`
	Max24hPercent    float64 `json:"max_24h_percent"`

	ReceivedAt time.Time `json:"received_at"`
}

// DefaultRecommendation is used when the producer has not sent one yet.
func DefaultRecommendation() Recommendation {
	return Recommendation{Action: ActionHold, Reason: DefaultReason}
}

// DefaultSample is the all-defaults Sample; it is also the sentinel returned
// when no sample has been received.
func DefaultSample() Sample {
	return Sample{
		FutureStorageCurve: []float64{},
		Recommendation:     DefaultRecommendation(),
	}
}

// Clone returns a copy that shares no memory with s.
func (s Sample) Clone() Sample {
	c := s
	if s.FutureStorageCurve != nil {
		c.FutureStorageCurve = append(make([]float64, 0, len(s.FutureStorageCurve)), s.FutureStorageCurve...)
	}
	return c
}
