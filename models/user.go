package models

// User is the subset of the owner record this service reads. Users are
// created and authenticated by the auth service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
