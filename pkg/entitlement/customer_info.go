package entitlement

import "time"

// CustomerInfo is the loosely structured purchase state reported by the mobile
// billing SDK right after a purchase or restore. Any field may be missing,
// notably in sandbox and simulator purchase flows.
type CustomerInfo struct {
	Entitlements                   Entitlements `json:"entitlements"`
	ActiveSubscriptions            []string     `json:"activeSubscriptions"`
	AllPurchasedProductIdentifiers []string     `json:"allPurchasedProductIdentifiers"`
	OriginalAppUserID              string       `json:"originalAppUserId" validate:"max=255"`
	ManagementURL                  *string      `json:"managementURL" validate:"omitempty,url"`
}

// Entitlements groups the SDK's entitlement maps keyed by entitlement identifier.
type Entitlements struct {
	Active map[string]EntitlementInfo `json:"active" validate:"dive"`
	All    map[string]EntitlementInfo `json:"all" validate:"dive"`
}

const sdkDateLayout = "2006-01-02T15:04:05Z07:00"

// EntitlementInfo is a single entitlement record as reported by the SDK.
type EntitlementInfo struct {
	Identifier             string  `json:"identifier" validate:"required"`
	IsActive               bool    `json:"isActive"`
	WillRenew              *bool   `json:"willRenew"`
	PeriodType             string  `json:"periodType"`
	ProductIdentifier      string  `json:"productIdentifier"`
	Store                  string  `json:"store"`
	IsSandbox              bool    `json:"isSandbox"`
	LatestPurchaseDate     *string `json:"latestPurchaseDate" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	OriginalPurchaseDate   *string `json:"originalPurchaseDate" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ExpirationDate         *string `json:"expirationDate" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	UnsubscribeDetectedAt  *string `json:"unsubscribeDetectedAt"`
	BillingIssueDetectedAt *string `json:"billingIssueDetectedAt"`
}

// ExpiresAt parses ExpirationDate; nil when absent (lifetime purchases).
func (e EntitlementInfo) ExpiresAt() *time.Time {
	return parseSDKDate(e.ExpirationDate)
}

// PurchasedAt parses OriginalPurchaseDate, falling back to LatestPurchaseDate.
func (e EntitlementInfo) PurchasedAt() *time.Time {
	if t := parseSDKDate(e.OriginalPurchaseDate); t != nil {
		return t
	}
	return parseSDKDate(e.LatestPurchaseDate)
}

func parseSDKDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(sdkDateLayout, *s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
