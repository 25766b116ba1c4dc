package models

// All lists every model owned by this service in dependency order.
// The sqlite dev path and repository tests migrate from it.
func All() []any {
	return []any{
		&User{},
		&Client{},
		&DJ{},
		&Event{},
		&Contract{},
		&ContractHistory{},
		&Notification{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
