package model

// Event is one named message sent to subscribers.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}
