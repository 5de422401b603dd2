package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaskStatus is the lifecycle state of a value-building task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskDeferred   TaskStatus = "DEFERRED"
	TaskBlocked    TaskStatus = "BLOCKED"
	TaskCancelled  TaskStatus = "CANCELLED"
)

// Open reports whether a task in this status still competes for priority.
func (s TaskStatus) Open() bool {
	return s != TaskCompleted && s != TaskCancelled
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskDeferred, TaskBlocked, TaskCancelled:
		return true
	}
	return false
}

// Task is a value-building action. When it carries an upgrade pair,
// completing it proves the company now qualifies for the better option.
type Task struct {
	ID                   string          `json:"id"`
	CompanyID            string          `json:"company_id"`
	Title                string          `json:"title"`
	Status               TaskStatus      `json:"status"`
	LinkedQuestionID     string          `json:"linked_question_id,omitempty"`
	UpgradesFromOptionID string          `json:"upgrades_from_option_id,omitempty"`
	UpgradesToOptionID   string          `json:"upgrades_to_option_id,omitempty"`
	RawImpact            decimal.Decimal `json:"raw_impact"`
	NormalizedValue      decimal.Decimal `json:"normalized_value"`
	TemplateKey          string          `json:"template_key,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
}

// HasUpgrade reports whether the task declares a linked question and a
// target option.
func (t *Task) HasUpgrade() bool {
	return t.LinkedQuestionID != "" && t.UpgradesToOptionID != ""
}

// TaskEvent is a status change notification from the task store.
type TaskEvent struct {
	TaskID               string          `json:"task_id"`
	CompanyID            string          `json:"company_id"`
	Title                string          `json:"title"`
	Status               TaskStatus      `json:"status"`
	LinkedQuestionID     string          `json:"linked_question_id,omitempty"`
	UpgradesFromOptionID string          `json:"upgrades_from_option_id,omitempty"`
	UpgradesToOptionID   string          `json:"upgrades_to_option_id,omitempty"`
	RawImpact            decimal.Decimal `json:"raw_impact"`
	ActorUserID          *string         `json:"actor_user_id,omitempty"`
}

// EventFromTask builds the status-change event for t.
func EventFromTask(t *Task) TaskEvent {
	return TaskEvent{
		TaskID:               t.ID,
		CompanyID:            t.CompanyID,
		Title:                t.Title,
		Status:               t.Status,
		LinkedQuestionID:     t.LinkedQuestionID,
		UpgradesFromOptionID: t.UpgradesFromOptionID,
		UpgradesToOptionID:   t.UpgradesToOptionID,
		RawImpact:            t.RawImpact,
	}
}
