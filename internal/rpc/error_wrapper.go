// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package rpc projects the gRPC-level errors the cluster returns into the
// typed serviceerror hierarchy the rest of this module matches on with
// errors.As, the way internal/client.go's call sites expect.
package rpc

import (
	"context"

	"github.com/gogo/status"
	failurepb "go.temporal.io/api/failure/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

// workflowServiceErrorWrapper wraps a WorkflowServiceClient so every RPC's
// returned error has already been converted from a gRPC status (carrying
// a gogo/protobuf failure detail, per the cluster's wire contract) into a
// concrete serviceerror type.
type workflowServiceErrorWrapper struct {
	workflowservice.WorkflowServiceClient
}

// NewWorkflowServiceErrorWrapper wraps client so its errors surface as
// serviceerror values instead of raw gRPC status errors.
func NewWorkflowServiceErrorWrapper(client workflowservice.WorkflowServiceClient) workflowservice.WorkflowServiceClient {
	return &workflowServiceErrorWrapper{WorkflowServiceClient: client}
}

func (w *workflowServiceErrorWrapper) convertError(err error) error {
	if err == nil {
		return nil
	}
	st := status.Convert(err)
	if st.Code() == codes.OK {
		return nil
	}

	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *failurepb.WorkflowExecutionAlreadyStartedFailure:
			return serviceerror.NewWorkflowExecutionAlreadyStarted(st.Message(), d.GetStartRequestId(), d.GetRunId())
		case *failurepb.NotFoundFailure:
			return serviceerror.NewNotFound(st.Message())
		}
	}

	switch st.Code() {
	case codes.NotFound:
		return serviceerror.NewNotFound(st.Message())
	case codes.AlreadyExists:
		return serviceerror.NewWorkflowExecutionAlreadyStarted(st.Message(), "", "")
	case codes.InvalidArgument:
		return serviceerror.NewInvalidArgument(st.Message())
	case codes.DeadlineExceeded:
		return serviceerror.NewDeadlineExceeded(st.Message())
	case codes.Canceled:
		return serviceerror.NewCanceled(st.Message())
	case codes.Unavailable:
		return serviceerror.NewUnavailable(st.Message())
	default:
		return serviceerror.NewInternal(st.Message())
	}
}

// The generated methods below all follow the same shape: call through,
// translate a non-nil error, pass everything else unchanged. Only the
// handful exercised by internal/client.go and internal/schedule_client.go
// are implemented; the rest fall back to the embedded client via Go's
// interface embedding, still raw gRPC errors for calls this module never
// issues.

func (w *workflowServiceErrorWrapper) StartWorkflowExecution(ctx context.Context, in *workflowservice.StartWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.StartWorkflowExecutionResponse, error) {
	resp, err := w.WorkflowServiceClient.StartWorkflowExecution(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) SignalWorkflowExecution(ctx context.Context, in *workflowservice.SignalWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.SignalWorkflowExecutionResponse, error) {
	resp, err := w.WorkflowServiceClient.SignalWorkflowExecution(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) SignalWithStartWorkflowExecution(ctx context.Context, in *workflowservice.SignalWithStartWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.SignalWithStartWorkflowExecutionResponse, error) {
	resp, err := w.WorkflowServiceClient.SignalWithStartWorkflowExecution(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) RequestCancelWorkflowExecution(ctx context.Context, in *workflowservice.RequestCancelWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.RequestCancelWorkflowExecutionResponse, error) {
	resp, err := w.WorkflowServiceClient.RequestCancelWorkflowExecution(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) TerminateWorkflowExecution(ctx context.Context, in *workflowservice.TerminateWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.TerminateWorkflowExecutionResponse, error) {
	resp, err := w.WorkflowServiceClient.TerminateWorkflowExecution(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) DescribeWorkflowExecution(ctx context.Context, in *workflowservice.DescribeWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	resp, err := w.WorkflowServiceClient.DescribeWorkflowExecution(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) GetWorkflowExecutionHistory(ctx context.Context, in *workflowservice.GetWorkflowExecutionHistoryRequest, opts ...grpc.CallOption) (*workflowservice.GetWorkflowExecutionHistoryResponse, error) {
	resp, err := w.WorkflowServiceClient.GetWorkflowExecutionHistory(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) QueryWorkflow(ctx context.Context, in *workflowservice.QueryWorkflowRequest, opts ...grpc.CallOption) (*workflowservice.QueryWorkflowResponse, error) {
	resp, err := w.WorkflowServiceClient.QueryWorkflow(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) UpdateWorkflowExecution(ctx context.Context, in *workflowservice.UpdateWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.UpdateWorkflowExecutionResponse, error) {
	resp, err := w.WorkflowServiceClient.UpdateWorkflowExecution(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) PollWorkflowExecutionUpdate(ctx context.Context, in *workflowservice.PollWorkflowExecutionUpdateRequest, opts ...grpc.CallOption) (*workflowservice.PollWorkflowExecutionUpdateResponse, error) {
	resp, err := w.WorkflowServiceClient.PollWorkflowExecutionUpdate(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) ListWorkflowExecutions(ctx context.Context, in *workflowservice.ListWorkflowExecutionsRequest, opts ...grpc.CallOption) (*workflowservice.ListWorkflowExecutionsResponse, error) {
	resp, err := w.WorkflowServiceClient.ListWorkflowExecutions(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) CountWorkflowExecutions(ctx context.Context, in *workflowservice.CountWorkflowExecutionsRequest, opts ...grpc.CallOption) (*workflowservice.CountWorkflowExecutionsResponse, error) {
	resp, err := w.WorkflowServiceClient.CountWorkflowExecutions(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) RecordActivityTaskHeartbeat(ctx context.Context, in *workflowservice.RecordActivityTaskHeartbeatRequest, opts ...grpc.CallOption) (*workflowservice.RecordActivityTaskHeartbeatResponse, error) {
	resp, err := w.WorkflowServiceClient.RecordActivityTaskHeartbeat(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) RecordActivityTaskHeartbeatById(ctx context.Context, in *workflowservice.RecordActivityTaskHeartbeatByIdRequest, opts ...grpc.CallOption) (*workflowservice.RecordActivityTaskHeartbeatByIdResponse, error) {
	resp, err := w.WorkflowServiceClient.RecordActivityTaskHeartbeatById(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) RespondActivityTaskCompleted(ctx context.Context, in *workflowservice.RespondActivityTaskCompletedRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCompletedResponse, error) {
	resp, err := w.WorkflowServiceClient.RespondActivityTaskCompleted(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) RespondActivityTaskCompletedById(ctx context.Context, in *workflowservice.RespondActivityTaskCompletedByIdRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCompletedByIdResponse, error) {
	resp, err := w.WorkflowServiceClient.RespondActivityTaskCompletedById(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) RespondActivityTaskFailed(ctx context.Context, in *workflowservice.RespondActivityTaskFailedRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskFailedResponse, error) {
	resp, err := w.WorkflowServiceClient.RespondActivityTaskFailed(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) RespondActivityTaskFailedById(ctx context.Context, in *workflowservice.RespondActivityTaskFailedByIdRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskFailedByIdResponse, error) {
	resp, err := w.WorkflowServiceClient.RespondActivityTaskFailedById(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) RespondActivityTaskCanceled(ctx context.Context, in *workflowservice.RespondActivityTaskCanceledRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCanceledResponse, error) {
	resp, err := w.WorkflowServiceClient.RespondActivityTaskCanceled(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) RespondActivityTaskCanceledById(ctx context.Context, in *workflowservice.RespondActivityTaskCanceledByIdRequest, opts ...grpc.CallOption) (*workflowservice.RespondActivityTaskCanceledByIdResponse, error) {
	resp, err := w.WorkflowServiceClient.RespondActivityTaskCanceledById(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) CreateSchedule(ctx context.Context, in *workflowservice.CreateScheduleRequest, opts ...grpc.CallOption) (*workflowservice.CreateScheduleResponse, error) {
	resp, err := w.WorkflowServiceClient.CreateSchedule(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) DescribeSchedule(ctx context.Context, in *workflowservice.DescribeScheduleRequest, opts ...grpc.CallOption) (*workflowservice.DescribeScheduleResponse, error) {
	resp, err := w.WorkflowServiceClient.DescribeSchedule(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) PatchSchedule(ctx context.Context, in *workflowservice.PatchScheduleRequest, opts ...grpc.CallOption) (*workflowservice.PatchScheduleResponse, error) {
	resp, err := w.WorkflowServiceClient.PatchSchedule(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) UpdateSchedule(ctx context.Context, in *workflowservice.UpdateScheduleRequest, opts ...grpc.CallOption) (*workflowservice.UpdateScheduleResponse, error) {
	resp, err := w.WorkflowServiceClient.UpdateSchedule(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) DeleteSchedule(ctx context.Context, in *workflowservice.DeleteScheduleRequest, opts ...grpc.CallOption) (*workflowservice.DeleteScheduleResponse, error) {
	resp, err := w.WorkflowServiceClient.DeleteSchedule(ctx, in, opts...)
	return resp, w.convertError(err)
}

func (w *workflowServiceErrorWrapper) ListSchedules(ctx context.Context, in *workflowservice.ListSchedulesRequest, opts ...grpc.CallOption) (*workflowservice.ListSchedulesResponse, error) {
	resp, err := w.WorkflowServiceClient.ListSchedules(ctx, in, opts...)
	return resp, w.convertError(err)
}
