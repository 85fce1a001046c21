package app

import "strings"

// Operation tracks a CLI command that may mutate the register.
// Operations are created in memory with ID=0. Only mutating commands
// persist them, taking an auto-increment ID that also versions the
// escrowed register snapshot.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "success" or "error"
}

// NewOperation creates a new in-memory operation.
func NewOperation(operation string, parameters ...string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: strings.Join(parameters, " "),
		Status:     "success",
	}
}

// Persisted returns true if this operation has been saved to the register.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed when err is non-nil and returns err.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.Status = "error"
	}
	return err
}
