package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/darehouse/backend/internal/betstate"
	"github.com/darehouse/backend/internal/escrow"
	"github.com/darehouse/backend/internal/models"
	"github.com/darehouse/backend/internal/ton"
	"go.uber.org/zap"
)

type SettingsStore interface {
	Get(ctx context.Context) (*models.HouseSettings, error)
	SetFees(ctx context.Context, bps int, actor string) error
	SetFeeRecipient(ctx context.Context, recipient, actor string) error
	ListTokens(ctx context.Context) ([]models.SupportedToken, error)
	AddToken(ctx context.Context, symbol, actor string) error
	RemoveToken(ctx context.Context, symbol string) (bool, error)
}

// HouseSettings is the admin view of fee configuration and the token list.
type HouseSettings struct {
	models.HouseSettings
	Tokens []models.SupportedToken `json:"tokens"`
}

// AdminService changes house configuration. Changes apply to bets accepted
// afterwards; accepted bets keep the fee they captured.
type AdminService struct {
	settings SettingsStore
	admins   map[string]bool
	log      *zap.Logger
}

// NewAdminService allows the given addresses to administer the house.
// Unparseable entries are logged and ignored.
func NewAdminService(settings SettingsStore, admins []string, log *zap.Logger) *AdminService {
	allowed, bad := ton.NormalizeAll(admins)
	for _, a := range bad {
		log.Warn("ignoring invalid admin address", zap.String("address", a))
	}
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return &AdminService{settings: settings, admins: set, log: log}
}

// IsAdmin reports whether actor may change house settings.
func (s *AdminService) IsAdmin(actor string) bool {
	a, err := ton.NormalizeAddress(actor)
	return err == nil && a != "" && s.admins[a]
}

func (s *AdminService) authorize(actor string) (string, error) {
	a, err := ton.NormalizeAddress(actor)
	if err != nil || a == "" || !s.admins[a] {
		return "", betstate.ErrOnlyAdmin
	}
	return a, nil
}

func (s *AdminService) GetSettings(ctx context.Context) (*HouseSettings, error) {
	hs, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	tokens, err := s.settings.ListTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	return &HouseSettings{HouseSettings: *hs, Tokens: tokens}, nil
}

func (s *AdminService) SetFees(ctx context.Context, actor string, bps int) error {
	a, err := s.authorize(actor)
	if err != nil {
		return err
	}
	if err := escrow.ValidateFeeBps(bps); err != nil {
		return err
	}
	if err := s.settings.SetFees(ctx, bps, a); err != nil {
		return err
	}
	s.log.Info("house fee updated", zap.Int("fee_bps", bps), zap.String("actor", a))
	return nil
}

func (s *AdminService) SetFeeRecipient(ctx context.Context, actor, recipient string) error {
	a, err := s.authorize(actor)
	if err != nil {
		return err
	}
	r, err := ton.NormalizeAddress(recipient)
	if err != nil || r == "" {
		return betstate.ErrInvalidAddress
	}
	if err := s.settings.SetFeeRecipient(ctx, r, a); err != nil {
		return err
	}
	s.log.Info("fee recipient updated", zap.String("recipient", r), zap.String("actor", a))
	return nil
}

func (s *AdminService) AddToken(ctx context.Context, actor, symbol string) error {
	a, err := s.authorize(actor)
	if err != nil {
		return err
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return betstate.ErrTokenNotSupported
	}
	if err := s.settings.AddToken(ctx, symbol, a); err != nil {
		return err
	}
	s.log.Info("token added", zap.String("token", symbol), zap.String("actor", a))
	return nil
}

// RemoveToken stops new bets in symbol. Existing bets are unaffected.
func (s *AdminService) RemoveToken(ctx context.Context, actor, symbol string) error {
	a, err := s.authorize(actor)
	if err != nil {
		return err
	}
	removed, err := s.settings.RemoveToken(ctx, strings.TrimSpace(symbol))
	if err != nil {
		return err
	}
	if !removed {
		return betstate.ErrTokenNotSupported
	}
	s.log.Info("token removed", zap.String("token", symbol), zap.String("actor", a))
	return nil
}
