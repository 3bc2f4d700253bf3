// Package errs defines the closed error taxonomy shared across the PMEM
// storage engine (spec §4.7, §7). Every failure that crosses a component
// boundary is conveyed as a *Error value; invariant violations are
// programmer errors and panic instead.
package errs

// Code is one of the fixed kinds the core is allowed to return.
type Code string

const (
	Success           Code = "success"
	InternalError     Code = "internal_error"
	InvalidArguments  Code = "invalid_arguments"
	BadRequest        Code = "bad_request"
	NoSuchTask        Code = "no_such_task"
	TaskPending       Code = "task_pending"
	TaskInProgress    Code = "task_in_progress"
	NoSuchPath        Code = "no_such_path"
	PathAlreadyExists Code = "path_already_imported"
	PoolFull          Code = "pool_full"
)

// message is the single user-facing string for each code.
var message = map[Code]string{
	Success:           "success",
	InternalError:     "internal error",
	InvalidArguments:  "invalid arguments",
	BadRequest:        "bad request",
	NoSuchTask:        "no such task",
	TaskPending:       "task pending",
	TaskInProgress:    "task in progress",
	NoSuchPath:        "no such path",
	PathAlreadyExists: "path already imported",
	PoolFull:          "pool full",
}

// String returns the fixed user-facing message for the code.
func (c Code) String() string {
	if m, ok := message[c]; ok {
		return m
	}
	return string(c)
}
