package entity

// EventType is the kind of row change a notification describes.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeNotification is one message from the backing store describing a row
// insert, update or delete on a board collection.
//
// Next is a partial payload: keys the store considered unchanged and large
// may be absent entirely. Previous is the pre-image when the store supplies
// one, and nil otherwise. Delivery is at-least-once and ordered only per
// entity id; the engine is built to tolerate both.
type ChangeNotification struct {
	Kind      Kind           `json:"kind"`
	EventType EventType      `json:"event_type"`
	Previous  *PartialEntity `json:"previous,omitempty"`
	Next      PartialEntity  `json:"next"`
}

// EntityID returns the id the notification is about, or "" when the payload
// carries none.
func (n ChangeNotification) EntityID() string {
	if n.Next.ID == nil {
		return ""
	}
	return *n.Next.ID
}
