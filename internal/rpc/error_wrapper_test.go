package rpc

import (
	"testing"

	"github.com/gogo/status"
	"github.com/stretchr/testify/require"
	failurepb "go.temporal.io/api/failure/v1"
	"go.temporal.io/api/serviceerror"
	"google.golang.org/grpc/codes"
)

func TestWorkflowServiceErrorWrapper_PlainNotFound(t *testing.T) {
	w := &workflowServiceErrorWrapper{}

	err := w.convertError(status.Error(codes.NotFound, "workflow not found"))

	require.IsType(t, &serviceerror.NotFound{}, err)
	require.Equal(t, "workflow not found", err.Error())
}

func TestWorkflowServiceErrorWrapper_AlreadyStartedDetail(t *testing.T) {
	w := &workflowServiceErrorWrapper{}
	st, buildErr := status.New(codes.AlreadyExists, "already running").WithDetails(
		&failurepb.WorkflowExecutionAlreadyStartedFailure{
			StartRequestId: "req-1",
			RunId:          "run-1",
		},
	)
	require.NoError(t, buildErr)

	err := w.convertError(st.Err())

	require.IsType(t, &serviceerror.WorkflowExecutionAlreadyStarted{}, err)
	started := err.(*serviceerror.WorkflowExecutionAlreadyStarted)
	require.Equal(t, "run-1", started.RunId)
	require.Equal(t, "req-1", started.StartRequestId)
}

func TestWorkflowServiceErrorWrapper_CodeFallback(t *testing.T) {
	w := &workflowServiceErrorWrapper{}

	tests := []struct {
		code codes.Code
		want interface{}
	}{
		{codes.InvalidArgument, &serviceerror.InvalidArgument{}},
		{codes.DeadlineExceeded, &serviceerror.DeadlineExceeded{}},
		{codes.Canceled, &serviceerror.Canceled{}},
		{codes.Unavailable, &serviceerror.Unavailable{}},
		{codes.Unknown, &serviceerror.Internal{}},
	}
	for _, tt := range tests {
		err := w.convertError(status.Error(tt.code, "boom"))
		require.IsType(t, tt.want, err)
	}
}

func TestWorkflowServiceErrorWrapper_NilIsNil(t *testing.T) {
	w := &workflowServiceErrorWrapper{}
	require.NoError(t, w.convertError(nil))
}
