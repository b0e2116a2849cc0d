package domain

// User is the slice of the external identity the engine needs.
type User struct {
	Id       string
	Username string
}
