package models

import (
	"encoding/json"
	"time"
)

// Resource текущее состояние ресурса на сервере.
// Удаление мягкое: запись остается с Deleted = true.
type Resource struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Payload   json.RawMessage
	Owner     string
	Target    string
	Deleted   bool
}

// AppliedMutation запись о применённой мутации, ключ идемпотентности + fingerprint
type AppliedMutation struct {
	AppliedAt   time.Time
	ID          string
	Owner       string
	Action      Action
	Target      string
	Fingerprint string
}
