package liquidity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Mode selects where quotes and settlements are sourced.
type Mode string

const (
	ModeInternal Mode = "internal"
	ModePartner  Mode = "partner"
)

var ErrInvalidMode = errors.New("invalid liquidity mode")

// ParseMode converts a case-insensitive mode name into a Mode.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeInternal:
		return ModeInternal, nil
	case ModePartner:
		return ModePartner, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, value)
	}
}

// PartnerConfig identifies the external settlement partner.
type PartnerConfig struct {
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl"`
	APIKey  string `json:"apiKey,omitempty"`
}

// Configured reports whether the partner can be called.
func (p PartnerConfig) Configured() bool {
	return p.BaseURL != ""
}

// SettingsSnapshot is an immutable view of the liquidity configuration.
type SettingsSnapshot struct {
	Mode    Mode          `json:"mode"`
	Partner PartnerConfig `json:"partner"`
}

// SettingsUpdate carries the fields an operator wants to change. Nil fields
// are left untouched.
type SettingsUpdate struct {
	Mode           *string `json:"mode,omitempty"`
	PartnerName    *string `json:"partnerName,omitempty"`
	PartnerBaseURL *string `json:"partnerBaseUrl,omitempty"`
	PartnerAPIKey  *string `json:"partnerApiKey,omitempty"`
}

// Settings is the single authoritative holder of the liquidity mode and partner
// integration. Update is the only writer.
type Settings struct {
	mu      sync.RWMutex
	current SettingsSnapshot
}

// NewSettings validates initial and returns a settings holder.
func NewSettings(initial SettingsSnapshot) (*Settings, error) {
	if initial.Mode == "" {
		initial.Mode = ModeInternal
	}
	if err := validate(initial); err != nil {
		return nil, err
	}
	return &Settings{current: initial}, nil
}

// Current returns the active configuration.
func (s *Settings) Current() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Mode returns the active liquidity mode.
func (s *Settings) Mode() Mode {
	return s.Current().Mode
}

// Partner returns the active partner configuration.
func (s *Settings) Partner() PartnerConfig {
	return s.Current().Partner
}

// Update applies update atomically. On error the previous configuration is kept.
func (s *Settings) Update(update SettingsUpdate) (SettingsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if update.Mode != nil {
		mode, err := ParseMode(*update.Mode)
		if err != nil {
			return s.current, err
		}
		next.Mode = mode
	}
	if update.PartnerName != nil {
		next.Partner.Name = strings.TrimSpace(*update.PartnerName)
	}
	if update.PartnerBaseURL != nil {
		next.Partner.BaseURL = strings.TrimRight(strings.TrimSpace(*update.PartnerBaseURL), "/")
	}
	if update.PartnerAPIKey != nil {
		next.Partner.APIKey = strings.TrimSpace(*update.PartnerAPIKey)
	}

	if err := validate(next); err != nil {
		return s.current, err
	}

	s.current = next
	return next, nil
}

func validate(snapshot SettingsSnapshot) error {
	if _, err := ParseMode(string(snapshot.Mode)); err != nil {
		return err
	}
	if snapshot.Mode == ModePartner && !snapshot.Partner.Configured() {
		return fmt.Errorf("%w: partner mode requires a partner base URL", ErrInvalidMode)
	}
	return nil
}

// Masked returns a copy of snapshot safe to show to operators.
func (s SettingsSnapshot) Masked() SettingsSnapshot {
	out := s
	if key := s.Partner.APIKey; key != "" {
		if len(key) <= 4 {
			out.Partner.APIKey = "****"
		} else {
			out.Partner.APIKey = "****" + key[len(key)-4:]
		}
	}
	return out
}
