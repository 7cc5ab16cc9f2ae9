package core

// Identity identifies the author of commits.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
