package anyopt

import (
	"fmt"

	"github.com/pkg/errors"
)

// A ConfigError indicates an invalid hyperparameter or
// an invalid optimizer configuration.
type ConfigError struct {
	Name    string
	Value   interface{}
	Message string
}

func (c *ConfigError) Error() string {
	if c.Value == nil {
		return fmt.Sprintf("invalid %s: %s", c.Name, c.Message)
	}
	return fmt.Sprintf("invalid %s (%v): %s", c.Name, c.Value, c.Message)
}

// A StateError indicates that optimizer state was used
// incorrectly, such as reading a slot before it exists
// or re-entering an update that is already running.
type StateError struct {
	Op      string
	Message string
}

func (s *StateError) Error() string {
	return s.Op + ": " + s.Message
}

// A ShapeError indicates that a gradient or a stored
// vector does not match the variable it belongs to.
type ShapeError struct {
	Name    string
	Want    int
	Got     int
	Message string
}

func (s *ShapeError) Error() string {
	if s.Message != "" {
		return fmt.Sprintf("%s: %s", s.Name, s.Message)
	}
	return fmt.Sprintf("%s: expected length %d but got %d", s.Name, s.Want, s.Got)
}

func configErr(name string, value interface{}, format string, args ...interface{}) error {
	return errors.WithStack(&ConfigError{
		Name:    name,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

func stateErr(op, format string, args ...interface{}) error {
	return errors.WithStack(&StateError{Op: op, Message: fmt.Sprintf(format, args...)})
}

func shapeErr(name string, want, got int) error {
	return errors.WithStack(&ShapeError{Name: name, Want: want, Got: got})
}

func shapeMsgErr(name, format string, args ...interface{}) error {
	return errors.WithStack(&ShapeError{Name: name, Message: fmt.Sprintf(format, args...)})
}
