package plot

import "time"

// Operation is one recorded CLI operation that changed stored data.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Operation  string
	Parameters string
	Status     string
	Detail     string
}

// Journal records operations that mutate the stores, newest last.
type Journal interface {
	StartOperation(operation, parameters string) (int64, error)
	FinishOperation(id int64, status, detail string) error
	// ListOperations returns at most limit operations, newest first.
	ListOperations(limit int) ([]Operation, error)
}
