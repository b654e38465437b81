package models

import (
	"encoding/json"
	"fmt"
)

// Action тип изменения, которое мутация применяет к удаленному ресурсу
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// ParseAction converts a user supplied string into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown action %q: must be create, update or delete", s)
	}
	return a, nil
}

// MutationStatus состояние записи в очереди мутаций
type MutationStatus string

const (
	MutationPending  MutationStatus = "pending"
	MutationInFlight MutationStatus = "in_flight"
	MutationDone     MutationStatus = "done"
	MutationFailed   MutationStatus = "failed"
)

// MutationRecord представляет одну отложенную операцию записи.
// Записи хранятся в durable log и отправляются на сервер sync engine'ом.
type MutationRecord struct {
	Payload   json.RawMessage `json:"payload,omitempty"`    // Payload непрозрачные данные мутации (JSON)
	ID        string          `json:"id"`                   // ID UUID, он же idempotency key на сервере
	Action    Action          `json:"action"`               // Action create, update или delete
	Target    string          `json:"target"`               // Target логический путь ресурса
	LastError string          `json:"last_error,omitempty"` // LastError описание последней ошибки доставки
	Status    MutationStatus  `json:"status"`               // Status pending, in_flight, done или failed
	Priority  int             `json:"priority"`             // Priority меньше = раньше
	CreatedAt int64           `json:"created_at"`           // CreatedAt монотонный timestamp (unix nanos), FIFO внутри приоритета
	UpdatedAt int64           `json:"updated_at"`           // UpdatedAt время последнего перехода (для информации)
	Attempts  int             `json:"attempts"`             // Attempts количество попыток доставки
}

// Less reports whether r is drained before other: priority ascending, then
// CreatedAt ascending. ID breaks the remaining ties so the order is total.
func (r *MutationRecord) Less(other *MutationRecord) bool {
	if r.Priority != other.Priority {
		return r.Priority < other.Priority
	}
	if r.CreatedAt != other.CreatedAt {
		return r.CreatedAt < other.CreatedAt
	}
	return r.ID < other.ID
}

// Clone создает глубокую копию записи
func (r *MutationRecord) Clone() *MutationRecord {
	c := *r
	if r.Payload != nil {
		c.Payload = make(json.RawMessage, len(r.Payload))
		copy(c.Payload, r.Payload)
	}
	return &c
}

// Mutation is the part of a record handed to the transport.
// ID doubles as the idempotency key.
type Mutation struct {
	Payload json.RawMessage
	ID      string
	Action  Action
	Target  string
}

// Mutation returns the delivery view of the record.
func (r *MutationRecord) Mutation() Mutation {
	return Mutation{
		ID:      r.ID,
		Action:  r.Action,
		Target:  r.Target,
		Payload: r.Payload,
	}
}
