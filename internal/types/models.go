// internal/types/models.go
package types

import "time"

// Sender identifies which side of the conversation authored a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// MessageKind distinguishes plain chat text from machine-narrated progress
// lines and decision forms.
type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageStatus MessageKind = "status"
	MessageForm   MessageKind = "form"
)

// Message is one entry in a session's conversation log. Log sequence is the
// only source of truth for ordering; At is for display and two messages may
// share a timestamp.
type Message struct {
	ID     MessageID    `json:"id"`
	Sender Sender       `json:"sender"`
	Kind   MessageKind  `json:"kind"`
	Text   string       `json:"text,omitempty"`
	Form   *FormRequest `json:"form,omitempty"`
	At     time.Time    `json:"at"`
}

// FormOption is one selectable choice in a decision form.
type FormOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	ETAHint     string `json:"eta_hint,omitempty"`
	Description string `json:"description,omitempty"`
}

// FormRequest asks the user to pick exactly one option. Forms are immutable
// once posted; answering one produces a new user text message, never an edit.
type FormRequest struct {
	Kind    string       `json:"kind"`
	Options []FormOption `json:"options"`
}

// Option returns the option with the given id, if present.
func (f *FormRequest) Option(id string) (FormOption, bool) {
	for _, opt := range f.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return FormOption{}, false
}

// StepStatus is the status of one workflow stage.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
)

// WorkflowStep is one named phase of the execution plan shown alongside the
// conversation.
type WorkflowStep struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

// SessionIndex is the archive record for one workspace session.
type SessionIndex struct {
	SessionID    SessionID  `json:"session_id"`
	SessionKey   SessionKey `json:"session_key"`
	Mode         string     `json:"mode"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	MessageCount int64      `json:"message_count"`
}
