package models

// Roles carried in the JWT. Admins may inspect and compact storage.
const (
	RoleAdmin   = "admin"
	RoleAuditor = "user"
)

// User is an account as stored in OxiDB. The store assigns the numeric _id.
type User struct {
	ID           string `json:"_id,omitempty"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash,omitempty"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	CreatedAt    string `json:"createdAt"`
}

// UserResponse is the public view of a User, without the password hash.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
