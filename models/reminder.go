package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReminderStatus is the lifecycle state of a reminder.
//
//	active -> completed  (user marks paid)
//	active -> overdue    (overdue sweep, due date passed)
//	overdue -> completed (user marks paid)
type ReminderStatus string

const (
	ReminderActive    ReminderStatus = "active"
	ReminderCompleted ReminderStatus = "completed"
	ReminderOverdue   ReminderStatus = "overdue"
)

func (s ReminderStatus) Valid() bool {
	return s == ReminderActive || s == ReminderCompleted || s == ReminderOverdue
}

const (
	DefaultLeadDays   = 2
	DefaultNotifyTime = "09:00"
)

// SavingsAdvice is an advisory annotation attached to a reminder. It is not
// authoritative financial data.
type SavingsAdvice struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	PotentialSaving string    `json:"potential_saving"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// Reminder is a scheduled due-date notification owned by one user.
type Reminder struct {
	ID                string       `json:"id"`
	OwnerID           string       `json:"owner_id"`
	Provider          ProviderKind `json:"provider"`
	AccountIdentifier string       `json:"account_identifier"`

	DueDate         time.Time `json:"due_date"`
	NotifyAt        time.Time `json:"notify_at"`
	LeadDays        int       `json:"lead_days"`
	NotifyTimeOfDay string    `json:"notify_time_of_day"`

	Status   ReminderStatus `json:"status"`
	Notified bool           `json:"notified"`

	Amount *decimal.Decimal `json:"amount,omitempty"`
	Notes  *string          `json:"notes,omitempty"`

	SavingsAdvice []SavingsAdvice `json:"savings_advice"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReminderStats summarises an owner's reminders.
type ReminderStats struct {
	Total             int `json:"total"`
	Active            int `json:"active"`
	Completed         int `json:"completed"`
	Overdue           int `json:"overdue"`
	NotificationsSent int `json:"notifications_sent"`
}

// ============================================================================
// REQUESTS
// ============================================================================

type CreateReminderRequest struct {
	Provider          string           `json:"provider" binding:"required"`
	AccountIdentifier string           `json:"account_identifier" binding:"required"`
	DueDate           string           `json:"due_date" binding:"required"` // YYYY-MM-DD
	LeadDays          *int             `json:"lead_days"`
	NotifyTimeOfDay   string           `json:"notify_time_of_day"` // HH:MM
	Amount            *decimal.Decimal `json:"amount"`
	Notes             *string          `json:"notes"`
}

// UpdateReminderRequest carries a partial edit; nil fields are left unchanged.
type UpdateReminderRequest struct {
	DueDate         *string          `json:"due_date"`
	LeadDays        *int             `json:"lead_days"`
	NotifyTimeOfDay *string          `json:"notify_time_of_day"`
	Amount          *decimal.Decimal `json:"amount"`
	Notes           *string          `json:"notes"`
}

// ReminderFromAccountRequest copies the due date and balance of an account's
// last successful query into a new reminder.
type ReminderFromAccountRequest struct {
	LeadDays        *int    `json:"lead_days"`
	NotifyTimeOfDay string  `json:"notify_time_of_day"`
	Notes           *string `json:"notes"`
}

// AdviceRequest asks for savings advice, optionally attached to a reminder.
type AdviceRequest struct {
	ReminderID string `json:"reminder_id"`
}
