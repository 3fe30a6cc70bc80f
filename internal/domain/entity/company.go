package entity

import "time"

// Company owns an employee roster and a single active workflow configuration.
// Currency is derived from Country at creation and never changes.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"created_at"`
}

// Employee is a user in the approval graph
type Employee struct {
	ID         int64     `json:"id"`
	CompanyID  int64     `json:"company_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	ManagerID  *int64    `json:"manager_id,omitempty"`
	LarkOpenID string    `json:"lark_open_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HasManager reports whether a manager is assigned
func (e *Employee) HasManager() bool {
	return e.ManagerID != nil && *e.ManagerID != 0
}
