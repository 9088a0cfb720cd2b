package entity

import "time"

type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleStaff    UserRole = "staff"
	UserRoleMerchant UserRole = "merchant_owner"
	UserRoleAdmin    UserRole = "admin"
)

// User is the identity record the engine trusts from the authentication
// collaborator; the engine never issues sessions itself.
type User struct {
	ID         int64     `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	Name       string    `json:"name" db:"name"`
	Role       UserRole  `json:"role" db:"role"`
	TelegramID string    `json:"telegram_id" db:"telegram_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

func (r UserRole) CanRedeem() bool {
	return r == UserRoleStaff || r == UserRoleMerchant || r == UserRoleAdmin
}
