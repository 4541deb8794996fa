package models

import "time"

// Member is a library patron identified by card number
type Member struct {
	CardNumber string
	Credential string // bcrypt hash of the PIN
}

// Reservation binds one hour-aligned time slot to one member
type Reservation struct {
	Slot       time.Time
	CardNumber string
	CreatedAt  time.Time
}
