// Package tasks — задачи, которые администратор ставит пользователям.
package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Статусы задачи
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Task — задача пользователя.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	AssigneeID  uuid.UUID  `json:"assigneeId"`
	CreatedBy   uuid.UUID  `json:"createdBy"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewTask — данные новой задачи.
type NewTask struct {
	AssigneeID  uuid.UUID  `json:"assigneeId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
}

// TaskPatch — правка задачи. Пользователь может менять только Status своей задачи.
type TaskPatch struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	AssigneeID  *uuid.UUID `json:"assigneeId"`
	Status      *string    `json:"status"`
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil && p.AssigneeID == nil && p.Status == nil
}

// onlyStatus — в патче нет ничего, кроме статуса.
func (p TaskPatch) onlyStatus() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil && p.AssigneeID == nil
}

func knownStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDone:
		return true
	}
	return false
}
