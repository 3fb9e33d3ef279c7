package core

import "github.com/google/uuid"

// NewID returns a globally unique identifier for tasks, messages and other
// entities that need one.
func NewID() string {
	return uuid.NewString()
}
