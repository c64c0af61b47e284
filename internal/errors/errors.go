// Package errors decorates remote call failures with structured metadata.
// Decorated errors keep their original message and unwrap to the original
// error; the metadata travels as GraphQL error extensions.
package errors

// RPCError carries a remote failure plus the extension payload exposed to
// GraphQL clients. The message is the original error's, untouched.
type RPCError struct {
	err        error
	extensions map[string]interface{}
}

func (e *RPCError) Error() string {
	return e.err.Error()
}

// Unwrap returns the original error, so status inspection with
// status.FromError and errors.Is keeps working through the decoration.
func (e *RPCError) Unwrap() error {
	return e.err
}

// Extensions returns the structured metadata attached to the error. The
// method satisfies the extended-error surface the GraphQL formatter looks
// for.
func (e *RPCError) Extensions() map[string]interface{} {
	return e.extensions
}
