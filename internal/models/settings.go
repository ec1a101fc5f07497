package models

import "time"

// HouseSettings holds the process-wide fee configuration. Bets capture
// FeeBps at accept and never read it again.
type HouseSettings struct {
	FeeBps       int       `json:"fee_bps"`
	FeeRecipient string    `json:"fee_recipient"`
	UpdatedBy    string    `json:"updated_by"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SupportedToken struct {
	Symbol  string    `json:"symbol"`
	AddedBy string    `json:"added_by"`
	AddedAt time.Time `json:"added_at"`
}
