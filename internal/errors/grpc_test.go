package errors

import (
	goerrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestFromRPC_Nil(t *testing.T) {
	assert.Nil(t, FromRPC(nil))
}

func TestFromRPC_PlainStatus(t *testing.T) {
	orig := status.Error(codes.InvalidArgument, "name rejected")

	err := FromRPC(orig)
	require.Error(t, err)
	// The message must stay the original one.
	assert.Equal(t, orig.Error(), err.Error())

	var rpcErr *RPCError
	require.True(t, goerrors.As(err, &rpcErr))
	ext := rpcErr.Extensions()
	assert.Equal(t, "InvalidArgument", ext["code"])
	assert.Equal(t, int(codes.InvalidArgument), ext["grpcCode"])

	// The status survives the decoration.
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestFromRPC_RichDetails(t *testing.T) {
	st := status.New(codes.FailedPrecondition, "bad payload")
	st, err := st.WithDetails(
		&errdetails.ErrorInfo{Reason: "FIELD_INVALID", Domain: "acme.example"},
		&errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{
				{Field: "name", Description: "must not be empty"},
			},
		},
	)
	require.NoError(t, err)

	decorated := FromRPC(st.Err())
	var rpcErr *RPCError
	require.True(t, goerrors.As(decorated, &rpcErr))

	ext := rpcErr.Extensions()
	assert.Equal(t, "FIELD_INVALID", ext["reason"])
	assert.Equal(t, "acme.example", ext["domain"])
	violations := ext["fieldViolations"].([]map[string]interface{})
	require.Len(t, violations, 1)
	assert.Equal(t, "name", violations[0]["field"])
}
