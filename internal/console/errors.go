package console

import "fmt"

// UserError is shown to the operator verbatim. It reports bad input or a
// refused request rather than a failure.
type UserError string

func (e UserError) Error() string { return string(e) }

// Userf formats a UserError.
func Userf(format string, args ...any) error {
	return UserError(fmt.Sprintf(format, args...))
}
