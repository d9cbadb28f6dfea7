package entitlement

import (
	"errors"
	"fmt"
	"strings"
)

// Default RevenueCat event names.
var (
	DefaultActivationEvents = []string{
		"INITIAL_PURCHASE",
		"RENEWAL",
		"UNCANCELLATION",
		"PRODUCT_CHANGE",
		"NON_RENEWING_PURCHASE",
		"SUBSCRIPTION_EXTENDED",
		"TEMPORARY_ENTITLEMENT_GRANT",
	}
	DefaultDeactivationEvents = []string{
		"EXPIRATION",
		"SUBSCRIPTION_PAUSED",
	}
)

const DefaultBillingIssueEvent = "BILLING_ISSUE"

// EventTypes maps provider event type names to a Classification.
// The activation and deactivation sets are disjoint; the billing issue type belongs to neither.
type EventTypes struct {
	classes map[string]Classification
}

// NewEventTypes validates the configured sets and builds the lookup table.
func NewEventTypes(activation, deactivation []string, billingIssue string) (*EventTypes, error) {
	classes := make(map[string]Classification, len(activation)+len(deactivation)+1)

	add := func(name string, class Classification) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil
		}
		if prev, ok := classes[name]; ok && prev != class {
			return errors.Join(ErrInvalidEventTypes,
				fmt.Errorf("event type %q is configured as both %s and %s", name, prev, class))
		}
		classes[name] = class
		return nil
	}

	for _, name := range activation {
		if err := add(name, ClassActivation); err != nil {
			return nil, err
		}
	}
	for _, name := range deactivation {
		if err := add(name, ClassDeactivation); err != nil {
			return nil, err
		}
	}
	if err := add(billingIssue, ClassBillingIssue); err != nil {
		return nil, err
	}

	return &EventTypes{classes: classes}, nil
}

// DefaultEventTypes returns the RevenueCat defaults.
func DefaultEventTypes() *EventTypes {
	et, err := NewEventTypes(DefaultActivationEvents, DefaultDeactivationEvents, DefaultBillingIssueEvent)
	if err != nil {
		panic(err)
	}
	return et
}

// Classify returns the category of eventType. Unknown types are ClassOther.
func (et *EventTypes) Classify(eventType string) Classification {
	if class, ok := et.classes[eventType]; ok {
		return class
	}
	return ClassOther
}
