package models

// EventType tags a profile event on the bus. Validators route on it without
// parsing the payload.
type EventType string

const (
	EventProfileCreate          EventType = "PROFILE_CREATE"
	EventProfileUpdate          EventType = "PROFILE_UPDATE"
	EventProfileAddSubscription EventType = "PROFILE_ADD_SUBSCRIPTION"
)

func (e EventType) String() string {
	return string(e)
}

// Attribute names a stored profile attribute that can be read by projection.
type Attribute string

const (
	AttrConsolidatedStatus      Attribute = "consolidatedStatus"
	AttrConsolidatedMessage     Attribute = "consolidatedMessage"
	AttrSubscriptionValidations Attribute = "subscriptionValidations"
)

// StatusAttributes lists the projection used by status queries.
var StatusAttributes = []Attribute{
	AttrConsolidatedStatus,
	AttrConsolidatedMessage,
	AttrSubscriptionValidations,
}

// ProjectedAttributes is the result of a projected read. A nil pointer or nil
// map means the attribute was not requested or is absent from the record.
type ProjectedAttributes struct {
	ConsolidatedStatus      *Status
	ConsolidatedMessage     *string
	SubscriptionValidations map[string]ProductValidation
}

// StatusResult is the per-product view returned by status queries.
type StatusResult struct {
	UserID              string                       `json:"userId"`
	ConsolidatedStatus  Status                       `json:"consolidatedStatus"`
	ConsolidatedMessage string                       `json:"consolidatedMessage,omitempty"`
	Subscriptions       map[string]ProductValidation `json:"subscriptions"`
}
