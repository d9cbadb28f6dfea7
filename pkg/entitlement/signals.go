package entitlement

import (
	"slices"
	"strings"
	"time"
)

// SignalName identifies which premium signal matched a client payload.
type SignalName string

const (
	SignalConfiguredEntitlement SignalName = "configured_entitlement"
	SignalAnyActiveEntitlement  SignalName = "any_active_entitlement"
	SignalActiveSubscription    SignalName = "active_subscription"
	SignalPurchasedProduct      SignalName = "purchased_product"
)

// SignalConfig carries the application's billing identifiers.
type SignalConfig struct {
	EntitlementID string   // entitlement identifier granting premium
	ProductIDs    []string // known product identifiers
}

// knowsProduct matches store product ids, including Google Play's
// "subscription:base-plan" form against the subscription id.
func (c SignalConfig) knowsProduct(productID string) bool {
	if productID == "" {
		return false
	}
	if slices.Contains(c.ProductIDs, productID) {
		return true
	}
	if base, _, ok := strings.Cut(productID, ":"); ok {
		return slices.Contains(c.ProductIDs, base)
	}
	return false
}

// Match describes the signal that established premium access.
type Match struct {
	Signal      SignalName
	ProductID   string
	Store       string
	Entitlement *EntitlementInfo // set for entitlement-based signals only
}

// WillRenew reads the matched entitlement's renewal flag. A missing flag, or a
// match without an entitlement, counts as renewing.
func (m Match) WillRenew() bool {
	if m.Entitlement != nil && m.Entitlement.WillRenew != nil {
		return *m.Entitlement.WillRenew
	}
	return true
}

// ExpiresAt returns the matched entitlement's expiration, if any.
func (m Match) ExpiresAt() *time.Time {
	if m.Entitlement == nil {
		return nil
	}
	return m.Entitlement.ExpiresAt()
}

// Signal is a pure premium detector over a client payload.
type Signal struct {
	Name   SignalName
	Detect func(info *CustomerInfo, cfg SignalConfig) (Match, bool)
}

// DefaultSignals returns the detectors in precedence order, most specific first.
func DefaultSignals() []Signal {
	return []Signal{
		{Name: SignalConfiguredEntitlement, Detect: configuredEntitlement},
		{Name: SignalAnyActiveEntitlement, Detect: anyActiveEntitlement},
		{Name: SignalActiveSubscription, Detect: activeSubscription},
		{Name: SignalPurchasedProduct, Detect: purchasedProduct},
	}
}

// DetectPremium evaluates signals in order and returns the first match.
func DetectPremium(info *CustomerInfo, cfg SignalConfig, signals []Signal) (Match, bool) {
	for _, s := range signals {
		if m, ok := s.Detect(info, cfg); ok {
			m.Signal = s.Name
			return m, true
		}
	}
	return Match{}, false
}

func configuredEntitlement(info *CustomerInfo, cfg SignalConfig) (Match, bool) {
	if cfg.EntitlementID == "" {
		return Match{}, false
	}
	ent, ok := info.Entitlements.Active[cfg.EntitlementID]
	if !ok || !ent.IsActive {
		return Match{}, false
	}
	return entitlementMatch(ent), true
}

func anyActiveEntitlement(info *CustomerInfo, _ SignalConfig) (Match, bool) {
	// sorted for a deterministic pick when several entitlements are active
	keys := make([]string, 0, len(info.Entitlements.Active))
	for k := range info.Entitlements.Active {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if ent := info.Entitlements.Active[k]; ent.IsActive {
			return entitlementMatch(ent), true
		}
	}
	return Match{}, false
}

func activeSubscription(info *CustomerInfo, cfg SignalConfig) (Match, bool) {
	return firstKnownProduct(info.ActiveSubscriptions, cfg)
}

func purchasedProduct(info *CustomerInfo, cfg SignalConfig) (Match, bool) {
	return firstKnownProduct(info.AllPurchasedProductIdentifiers, cfg)
}

func firstKnownProduct(productIDs []string, cfg SignalConfig) (Match, bool) {
	for _, id := range productIDs {
		if cfg.knowsProduct(id) {
			return Match{ProductID: id}, true
		}
	}
	return Match{}, false
}

func entitlementMatch(ent EntitlementInfo) Match {
	return Match{
		ProductID:   ent.ProductIdentifier,
		Store:       ent.Store,
		Entitlement: &ent,
	}
}
