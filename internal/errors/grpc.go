package errors

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

// FromRPC decorates a gRPC call failure with its status code and any rich
// detail messages the server attached. Non-status errors pass through
// unchanged; nil stays nil.
func FromRPC(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	ext := map[string]interface{}{
		"code":     st.Code().String(),
		"grpcCode": int(st.Code()),
	}

	var violations []map[string]interface{}
	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *errdetails.ErrorInfo:
			ext["reason"] = d.GetReason()
			if d.GetDomain() != "" {
				ext["domain"] = d.GetDomain()
			}
		case *errdetails.BadRequest:
			for _, v := range d.GetFieldViolations() {
				violations = append(violations, map[string]interface{}{
					"field":       v.GetField(),
					"description": v.GetDescription(),
				})
			}
		case *errdetails.RetryInfo:
			if delay := d.GetRetryDelay(); delay != nil {
				ext["retryDelay"] = delay.AsDuration().String()
			}
		case *errdetails.LocalizedMessage:
			ext["localizedMessage"] = d.GetMessage()
		}
	}
	if len(violations) > 0 {
		ext["fieldViolations"] = violations
	}

	return &RPCError{err: err, extensions: ext}
}
