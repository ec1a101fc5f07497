package models

import "time"

// BetSnapshot is the projector's mirror of a bet, built only from events.
// Identity fields are best effort and may be nil.
type BetSnapshot struct {
	Bet
	ChallengerName   *string   `json:"challenger_name,omitempty"`
	ChallengerAvatar *string   `json:"challenger_avatar,omitempty"`
	ChallengeeName   *string   `json:"challengee_name,omitempty"`
	ChallengeeAvatar *string   `json:"challengee_avatar,omitempty"`
	MediatorName     *string   `json:"mediator_name,omitempty"`
	MediatorAvatar   *string   `json:"mediator_avatar,omitempty"`
	LastSeq          int64     `json:"last_seq"`
	ProjectedAt      time.Time `json:"projected_at"`
}

// Profile is external identity metadata for an address.
type Profile struct {
	Address     string    `json:"address"`
	Username    *string   `json:"username,omitempty"`
	DisplayName *string   `json:"display_name,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Empty reports whether the lookup produced nothing usable.
func (p *Profile) Empty() bool {
	return p == nil || (p.DisplayName == nil && p.AvatarURL == nil)
}
