package model

// UserRole decides which machines a viewer is shown.
type UserRole string

const (
	RoleOwner    UserRole = "OWNER"
	RoleBorrower UserRole = "BORROWER"
)

// User is an account known to the fleet.
type User struct {
	ID    string   `yaml:"id" json:"id"`
	Name  string   `yaml:"name" json:"name"`
	Email string   `yaml:"email" json:"email"`
	Role  UserRole `yaml:"role" json:"role"`
}
