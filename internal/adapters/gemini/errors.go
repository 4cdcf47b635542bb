package gemini

import "fmt"

var (
	ErrNotFound = fmt.Errorf("not found")
	ErrEmpty    = fmt.Errorf("empty completion")
)

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api status %d: %s", e.Status, e.Body)
}
