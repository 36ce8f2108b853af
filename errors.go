package liekodb

// Code is an error code carried in the response envelope (spec §6/§7).
type Code int

const (
	// CodeValidation marks invalid input: an invalid collection name, a
	// malformed filter document, or (in the transport adapter) a request
	// body that cannot be decoded. Skip, limit and projection values are
	// not validated.
	CodeValidation Code = 400
	// CodeNotFound marks an empty find result, or an unknown id on
	// findById/updateById/deleteById. Dropping a collection that does not
	// exist is not an error.
	CodeNotFound Code = 404
	// CodeConflict marks a duplicate index or similar structural clash.
	CodeConflict Code = 409
	// CodeInternal marks an unexpected failure, including persister IO.
	CodeInternal Code = 500
)

// Error is the envelope's error payload.
type Error struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
}

func (e *Error) Error() string { return e.Message }

func newError(code Code, msg string) *Error { return &Error{Message: msg, Code: code} }

// Result is the stable envelope every envelope-wrapped Engine operation
// returns (Collection's methods return typed values and errors instead):
// a transport adapter serializes this shape directly (spec §6).
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

func ok(data interface{}) Result       { return Result{Success: true, Data: data} }
func fail(err *Error) Result           { return Result{Success: false, Data: nil, Error: err} }
func failWithData(err *Error, data interface{}) Result {
	return Result{Success: false, Data: data, Error: err}
}
