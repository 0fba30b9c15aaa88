package domain

import "strings"

// UserRecord represents a single account in the user directory.
type UserRecord struct {
	Name              string `json:"name"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	PasswordHash      string `json:"password_hash"`
	VerificationToken string `json:"verification_token,omitempty"`
}

// UserDirectory is the full snapshot of all accounts, persisted as one unit.
type UserDirectory struct {
	Users      []UserRecord `json:"users"`
	TotalCount int64        `json:"total_count"`

	// Revision is assigned by the store on load/save and is used to detect
	// concurrent writers. It is not part of the serialized snapshot.
	Revision string `json:"-"`
}

// NewUserDirectory returns an empty directory.
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{Users: []UserRecord{}}
}

// FindByEmail returns the record with the given email, or nil.
func (d *UserDirectory) FindByEmail(email string) *UserRecord {
	for i := range d.Users {
		if d.Users[i].Email == email {
			return &d.Users[i]
		}
	}
	return nil
}

// FindByUsername returns the first record with the given username, or nil.
func (d *UserDirectory) FindByUsername(username string) *UserRecord {
	for i := range d.Users {
		if d.Users[i].Username == username {
			return &d.Users[i]
		}
	}
	return nil
}

// FindByResetToken returns the record matching both email and a non-empty
// pending verification token, or nil.
func (d *UserDirectory) FindByResetToken(email, token string) *UserRecord {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	for i := range d.Users {
		if d.Users[i].Email == email && d.Users[i].VerificationToken == token {
			return &d.Users[i]
		}
	}
	return nil
}

// Add appends a record and bumps the creation counter.
func (d *UserDirectory) Add(user UserRecord) {
	d.Users = append(d.Users, user)
	d.TotalCount++
}
