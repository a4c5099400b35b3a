package audit

import "time"

// Action represents the kind of membership mutation an entry records.
type Action string

const (
	ActionGrant  Action = "GRANT"
	ActionChange Action = "CHANGE"
	ActionRevoke Action = "REVOKE"
)

// Entry is one immutable row of the project-membership ledger. PreviousRole
// and NewRole are nil according to the action: GRANT has no previous role,
// REVOKE has no new role.
type Entry struct {
	ID           int64      `json:"id"`
	ProjectID    string     `json:"project_id"`
	ActorID      string     `json:"actor_id"`
	TargetID     string     `json:"target_id"`
	Action       Action     `json:"action"`
	PreviousRole *string    `json:"previous_role,omitempty"`
	NewRole      *string    `json:"new_role,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
