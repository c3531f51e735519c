package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateArtKey OutboxAggregateType = "artkey"
	AggregateMedia  OutboxAggregateType = "media"
	AggregateOrder  OutboxAggregateType = "order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateArtKey,
	AggregateMedia,
	AggregateOrder,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventArtKeyCreated           OutboxEventType = "artkey_created"
	EventArtKeyAttached          OutboxEventType = "artkey_attached"
	EventArtKeyReleased          OutboxEventType = "artkey_released"
	EventArtKeyPublished         OutboxEventType = "artkey_published"
	EventMediaUploaded           OutboxEventType = "media_uploaded"
	EventMediaApproved           OutboxEventType = "media_approved"
	EventPrintCompositeGenerated OutboxEventType = "print_composite_generated"
)

var validOutboxEventTypes = []OutboxEventType{
	EventArtKeyCreated,
	EventArtKeyAttached,
	EventArtKeyReleased,
	EventArtKeyPublished,
	EventMediaUploaded,
	EventMediaApproved,
	EventPrintCompositeGenerated,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
