package model

// EntityKind names a persisted entity family.
type EntityKind string

const (
	EntityBill         EntityKind = "bill"
	EntityBillVersion  EntityKind = "bill_version"
	EntityCostEstimate EntityKind = "cost_estimate"
	EntityVote         EntityKind = "vote"
)

// Entity is a canonical record produced from one parsed artifact.
type Entity interface {
	EntityKind() EntityKind
	// EntityKey is the natural key rendered as a string, unique per kind.
	EntityKey() string
	// LockKey scopes write serialization. Entities sharing a bill share it.
	LockKey() string
	Hash() string
	// Scope returns the congress and, when the entity belongs to a bill, the bill key.
	Scope() (congress int, billKey string)
}
