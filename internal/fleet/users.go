package fleet

import (
	"strings"

	"jute-fleet-backend/internal/model"
)

// Directory is the read-only set of known users.
type Directory struct {
	users []model.User
}

func NewDirectory(users []model.User) *Directory {
	d := &Directory{users: make([]model.User, len(users))}
	copy(d.users, users)
	return d
}

// List returns all users.
func (d *Directory) List() []model.User {
	out := make([]model.User, len(d.users))
	copy(out, d.users)
	return out
}

// FindByEmail matches emails case-insensitively.
func (d *Directory) FindByEmail(email string) (model.User, bool) {
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			return u, true
		}
	}
	return model.User{}, false
}

func (d *Directory) FindByID(id string) (model.User, bool) {
	for _, u := range d.users {
		if u.ID == id {
			return u, true
		}
	}
	return model.User{}, false
}

// Resolve accepts either an email or a user id.
func (d *Directory) Resolve(identity string) (model.User, bool) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return model.User{}, false
	}
	if u, ok := d.FindByEmail(identity); ok {
		return u, true
	}
	return d.FindByID(identity)
}
