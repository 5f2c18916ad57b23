package domain

// User is a username stored under a server-generated identifier.
// ID is the canonical string form of a random UUID and doubles as the store key.
type User struct {
	ID       string
	Username string
}
