package model

// User is consumed read-only from the user store. Orders key on Login,
// subscriptions key on ID.
type User struct {
	ID    string // UUID
	Login string
}
