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

package internal

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pborman/uuid"
	"github.com/uber-go/tally"
	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	historypb "go.temporal.io/api/history/v1"
	querypb "go.temporal.io/api/query/v1"
	taskqueuepb "go.temporal.io/api/taskqueue/v1"
	updatepb "go.temporal.io/api/update/v1"
	"go.temporal.io/api/workflowservice/v1"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/temporal-community/gosdk/converter"
	"github.com/temporal-community/gosdk/internal/common/backoff"
	"github.com/temporal-community/gosdk/internal/rpc"
	"github.com/temporal-community/gosdk/log"
)

// QueryTypeStackTrace is the built-in query every worker registers: it
// returns the replay stack of every open coroutine in the target
// workflow, decoded as a plain string.
const QueryTypeStackTrace string = "__stack_trace"

type (
	// Client is the facade an application holds to start, signal, query,
	// update, list and otherwise manage workflow executions against a
	// Temporal cluster, plus complete/heartbeat activities asynchronously.
	Client interface {
		// ExecuteWorkflow starts a new workflow execution and returns a
		// WorkflowRun handle to it. workflow may be a registered workflow
		// type name or the workflow function itself.
		ExecuteWorkflow(ctx context.Context, options StartWorkflowOptions, workflow interface{}, args ...interface{}) (WorkflowRun, error)

		// GetWorkflow returns a WorkflowRun handle to an existing execution.
		// An empty runID resolves to the currently running (or, if closed,
		// most recent) run of workflowID.
		GetWorkflow(ctx context.Context, workflowID string, runID string) WorkflowRun

		// SignalWorkflow delivers a signal to a running workflow execution.
		SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error

		// SignalWithStartWorkflow delivers a signal to workflowID, starting
		// it first if it is not currently running.
		SignalWithStartWorkflow(ctx context.Context, workflowID string, signalName string, signalArg interface{},
			options StartWorkflowOptions, workflow interface{}, workflowArgs ...interface{}) (*WorkflowExecution, error)

		// UpdateWorkflow proposes an update against a running workflow and
		// returns a handle once the update has at least been accepted (or
		// rejected) by the workflow's validator. Callers that also need the
		// update's result should call Get on the returned handle.
		UpdateWorkflow(ctx context.Context, options UpdateWorkflowOptions) (WorkflowUpdateHandle, error)

		// CancelWorkflow requests cancellation of a running workflow
		// execution. The workflow observes the request the next time it
		// blocks on its Context.Done() channel.
		CancelWorkflow(ctx context.Context, workflowID string, runID string) error

		// TerminateWorkflow forcibly stops a workflow execution without
		// giving it a chance to run any more workflow code.
		TerminateWorkflow(ctx context.Context, workflowID string, runID string, reason string, details ...interface{}) error

		// GetWorkflowHistory returns an iterator over a workflow execution's
		// history events, long polling for new events while isLongPoll is
		// true and the execution is still running.
		GetWorkflowHistory(ctx context.Context, workflowID string, runID string, isLongPoll bool, filterType enumspb.HistoryEventFilterType) HistoryEventIterator

		// CompleteActivity reports the outcome of an activity whose Execute
		// method returned ErrActivityResultPending, identified by the task token
		// captured from ActivityInfo at the time it ran.
		CompleteActivity(ctx context.Context, taskToken []byte, result interface{}, err error) error

		// CompleteActivityByID is CompleteActivity for an activity started
		// with a caller-supplied ActivityID instead of relying on the task
		// token.
		CompleteActivityByID(ctx context.Context, namespace, workflowID, runID, activityID string, result interface{}, err error) error

		// RecordActivityHeartbeat reports liveness and progress details for
		// a long running activity identified by task token.
		RecordActivityHeartbeat(ctx context.Context, taskToken []byte, details ...interface{}) error

		// RecordActivityHeartbeatByID is RecordActivityHeartbeat for an
		// activity identified by its ActivityID.
		RecordActivityHeartbeatByID(ctx context.Context, namespace, workflowID, runID, activityID string, details ...interface{}) error

		// QueryWorkflow synchronously queries a workflow execution's current
		// state with the given queryType and returns the decoded result.
		QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.Value, error)

		// QueryWorkflowWithOptions is QueryWorkflow taking and returning a
		// struct, for callers that need the query-rejected condition or a
		// non-default QueryConsistencyLevel.
		QueryWorkflowWithOptions(ctx context.Context, request *QueryWorkflowWithOptionsRequest) (*QueryWorkflowWithOptionsResponse, error)

		// DescribeWorkflowExecution returns metadata (execution config,
		// pending activities/children, memo, search attributes) about a
		// workflow execution.
		DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)

		// ListWorkflow returns a page of workflow executions matching a
		// visibility query (the same list-filter language the Temporal Web
		// UI uses).
		ListWorkflow(ctx context.Context, request *workflowservice.ListWorkflowExecutionsRequest) (*workflowservice.ListWorkflowExecutionsResponse, error)

		// CountWorkflow returns the number of workflow executions matching a
		// visibility query.
		CountWorkflow(ctx context.Context, request *workflowservice.CountWorkflowExecutionsRequest) (*workflowservice.CountWorkflowExecutionsResponse, error)

		// ScheduleClient returns the client for create/describe/backfill/
		// trigger/update/pause/delete/list operations on Schedules.
		ScheduleClient() ScheduleClient

		// WorkflowService exposes the raw, error-converting gRPC client for
		// operations this facade doesn't wrap.
		WorkflowService() workflowservice.WorkflowServiceClient

		// CloseConnection closes the underlying gRPC connection.
		CloseConnection() error
	}

	// ClientOptions are optional parameters for Client creation.
	ClientOptions struct {
		// HostPort is the address passed to grpc.Dial, "host:port". No
		// load-balancing policy is configured on the connection.
		// Default: "localhost:7233".
		HostPort string

		// Namespace scopes every operation this client performs.
		// Default: "default".
		Namespace string

		// MetricsScope is accepted but not used: the client records no
		// RPC metrics.
		MetricsScope tally.Scope

		// Identity tags this client in audit fields (TerminatedBy-style
		// history attribution) and in task-token-less activity completion
		// calls. Default: "<pid>@<hostname>@<SDKName>".
		Identity string

		// DataConverter customizes argument/result serialization. Default:
		// converter.Default.
		DataConverter converter.DataConverter

		// Logger receives client-level diagnostic messages. Default: a
		// no-op logger.
		Logger log.Logger

		// Tracer is accepted but not used: the client emits no spans.
		Tracer opentracing.Tracer

		// ContextPropagators are accepted but not applied: the client sets
		// no headers on the requests it sends.
		ContextPropagators []ContextPropagator

		// ConnectionOptions configure the underlying gRPC dial, beyond
		// HostPort. Most callers leave this at the zero value.
		ConnectionOptions ConnectionOptions
	}

	// ConnectionOptions customizes the gRPC connection used by a Client.
	ConnectionOptions struct {
		// DialOptions are appended after grpc.WithInsecure(), the only dial
		// option this SDK always sets. Errors are converted by wrapping the
		// service client, not by a dial interceptor.
		DialOptions []grpc.DialOption
		// DisableAutoRetry is not read: the client configures no
		// client-side retry policy of its own.
		DisableAutoRetry bool
	}

	// StartWorkflowOptions configures a new workflow execution.
	StartWorkflowOptions struct {
		// ID is the business identifier of the workflow execution.
		// Default: a generated UUID.
		ID string

		// TaskQueue is the queue workflow tasks (and, unless overridden, its
		// activities) are scheduled on. Mandatory.
		TaskQueue string

		// WorkflowExecutionTimeout bounds the total duration of the
		// workflow, across every ContinueAsNew/retry run. Zero leaves it
		// unset on the request.
		WorkflowExecutionTimeout time.Duration

		// WorkflowRunTimeout bounds the duration of a single run. Default:
		// WorkflowExecutionTimeout.
		WorkflowRunTimeout time.Duration

		// WorkflowTaskTimeout bounds how long a worker has to process one
		// workflow task before the server times it out and reschedules it.
		// Default: 10s.
		WorkflowTaskTimeout time.Duration

		// WorkflowIDReusePolicy controls whether a new run may reuse an ID
		// already used by a prior, now-closed, execution.
		WorkflowIDReusePolicy WorkflowIDReusePolicy

		// RetryPolicy configures automatic retry of a failed/timed-out
		// workflow execution as a brand new run.
		RetryPolicy *RetryPolicy

		// CronSchedule, if set, reschedules a new run on this cron
		// expression after each run completes (UTC).
		CronSchedule string

		// Memo is non-indexed metadata visible in ListWorkflow/Describe.
		Memo map[string]interface{}

		// SearchAttributes is indexed metadata usable in ListWorkflow query
		// filters; keys must be registered with the cluster.
		SearchAttributes map[string]interface{}
	}

	// RetryPolicy governs automatic retry of workflow executions and, when
	// attached to activity options, of individual activity attempts.
	RetryPolicy struct {
		// InitialInterval is the backoff before the first retry.
		InitialInterval time.Duration
		// BackoffCoefficient multiplies the previous interval for each
		// subsequent retry. Default: 2.0.
		BackoffCoefficient float64
		// MaximumInterval caps the backoff. Default: 100x InitialInterval.
		MaximumInterval time.Duration
		// MaximumAttempts caps the number of attempts; 0 means unlimited
		// (bounded only by the execution/schedule-to-close timeout).
		MaximumAttempts int32
		// NonRetryableErrorTypes stops retry immediately when an
		// ApplicationError's Type matches one of these.
		NonRetryableErrorTypes []string
	}

	// WorkflowIDReusePolicy controls ID reuse across workflow executions.
	WorkflowIDReusePolicy int

	// ParentClosePolicy controls what happens to a running child workflow
	// when its parent closes.
	ParentClosePolicy int
)

const (
	// WorkflowIDReusePolicyAllowDuplicate permits starting a new execution
	// with this ID regardless of any prior execution's outcome.
	WorkflowIDReusePolicyAllowDuplicate WorkflowIDReusePolicy = iota
	// WorkflowIDReusePolicyAllowDuplicateFailedOnly permits reuse only if
	// the prior execution with this ID did not complete successfully.
	WorkflowIDReusePolicyAllowDuplicateFailedOnly
	// WorkflowIDReusePolicyRejectDuplicate never permits reuse while any
	// execution with this ID exists, regardless of its outcome.
	WorkflowIDReusePolicyRejectDuplicate
	// WorkflowIDReusePolicyTerminateIfRunning terminates a currently
	// running execution with this ID before starting the new one.
	WorkflowIDReusePolicyTerminateIfRunning
)

const (
	// ParentClosePolicyTerminate terminates the child when the parent closes.
	ParentClosePolicyTerminate ParentClosePolicy = iota
	// ParentClosePolicyRequestCancel requests cancellation of the child.
	ParentClosePolicyRequestCancel
	// ParentClosePolicyAbandon leaves the child running untouched.
	ParentClosePolicyAbandon
)

// ContextPropagator carries caller-defined values (tracing span IDs,
// tenant identifiers, ...) from an originating process into a workflow's
// replay context and back out into any activity/child workflow it starts.
type ContextPropagator interface {
	// Inject serializes values out of ctx into header.
	Inject(ctx context.Context, header *commonpb.Header) error
	// Extract deserializes header back into a context.
	Extract(ctx context.Context, header *commonpb.Header) (context.Context, error)
	// InjectFromWorkflow/ExtractToWorkflow are Inject/Extract's
	// counterparts for the deterministic replay Context.
	InjectFromWorkflow(ctx Context, header *commonpb.Header) error
	ExtractToWorkflow(ctx Context, header *commonpb.Header) (Context, error)
}

// WorkflowExecution identifies one run of a workflow.
type WorkflowExecution struct {
	ID    string
	RunID string
}

func (w WorkflowExecution) String() string {
	return fmt.Sprintf("%s/%s", w.ID, w.RunID)
}

// WorkflowRun is a handle to a (possibly still executing) workflow
// execution, returned by ExecuteWorkflow and GetWorkflow.
type WorkflowRun interface {
	// GetID returns the workflow ID.
	GetID() string
	// GetRunID returns the run ID of the run that was originally started;
	// if that run closed with ContinueAsNewError, this is NOT the final
	// run's ID — Get still follows the chain to the final run's result.
	GetRunID() string
	// Get blocks until the workflow (following any ContinueAsNew chain)
	// completes, then decodes its result into valuePtr.
	Get(ctx context.Context, valuePtr interface{}) error
}

// UpdateWorkflowOptions parameterizes Client.UpdateWorkflow.
type UpdateWorkflowOptions struct {
	WorkflowID   string
	RunID        string
	UpdateName   string
	UpdateID     string // default: generated UUID
	Args         []interface{}
	WaitForStage UpdateWorkflowExecutionLifecycleStage
}

// UpdateWorkflowExecutionLifecycleStage names the point in the Update
// protocol's validate -> accept -> complete pipeline a caller is willing
// to block until.
type UpdateWorkflowExecutionLifecycleStage int

const (
	// UpdateWorkflowExecutionLifecycleStageAccepted returns as soon as the
	// update has been accepted (or rejected) by the workflow's validator,
	// without waiting for the handler to finish running.
	UpdateWorkflowExecutionLifecycleStageAccepted UpdateWorkflowExecutionLifecycleStage = iota
	// UpdateWorkflowExecutionLifecycleStageCompleted returns only once the
	// update handler itself has returned a result or failed.
	UpdateWorkflowExecutionLifecycleStageCompleted
)

// WorkflowUpdateHandle is returned by Client.UpdateWorkflow once the
// update has reached at least the Accepted stage; Get blocks for the
// Completed stage.
type WorkflowUpdateHandle interface {
	WorkflowID() string
	RunID() string
	UpdateID() string
	// Get blocks (long polling the server) until the update completes,
	// then decodes its result into valuePtr. Returns
	// *WorkflowUpdateFailedError if the update handler failed.
	Get(ctx context.Context, valuePtr interface{}) error
}

// WorkflowUpdateFailedError wraps the error an update handler returned,
// surfaced to callers blocked on WorkflowUpdateHandle.Get.
type WorkflowUpdateFailedError struct {
	cause error
}

func (e *WorkflowUpdateFailedError) Error() string { return "update failed: " + e.cause.Error() }
func (e *WorkflowUpdateFailedError) Unwrap() error  { return e.cause }

// QueryRejectedError is returned by QueryWorkflow(WithOptions) when the
// target workflow's status does not satisfy the request's
// QueryRejectCondition.
type QueryRejectedError struct {
	status enumspb.WorkflowExecutionStatus
}

func (e *QueryRejectedError) Error() string {
	return fmt.Sprintf("query rejected, workflow status: %v", e.status)
}

// QueryWorkflowWithOptionsRequest parameterizes
// Client.QueryWorkflowWithOptions.
type QueryWorkflowWithOptionsRequest struct {
	WorkflowID         string
	RunID              string
	QueryType          string
	Args               []interface{}
	QueryRejectCondition enumspb.QueryRejectCondition
}

// QueryWorkflowWithOptionsResponse is the result of
// Client.QueryWorkflowWithOptions.
type QueryWorkflowWithOptionsResponse struct {
	QueryResult   converter.Value
	QueryRejected *QueryRejectedError
}

type workflowClient struct {
	workflowService workflowservice.WorkflowServiceClient
	conn            *grpc.ClientConn
	namespace       string
	identity        string
	dataConverter   converter.DataConverter
	logger          log.Logger
	metricsScope    tally.Scope
	scheduleClient  ScheduleClient
}

// NewClient dials hostPort and returns a Client scoped to options.Namespace.
func NewClient(options ClientOptions) (Client, error) {
	if options.HostPort == "" {
		options.HostPort = "localhost:7233"
	}
	if options.Namespace == "" {
		options.Namespace = "default"
	}
	if options.DataConverter == nil {
		options.DataConverter = converter.Default
	}
	if options.Logger == nil {
		options.Logger = log.NewNopLogger()
	}
	if options.Identity == "" {
		options.Identity = defaultIdentity()
	}

	dialOpts := append([]grpc.DialOption{grpc.WithInsecure()}, options.ConnectionOptions.DialOptions...)
	conn, err := grpc.Dial(options.HostPort, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", options.HostPort, err)
	}

	raw := workflowservice.NewWorkflowServiceClient(conn)
	wrapped := rpc.NewWorkflowServiceErrorWrapper(raw)

	c := &workflowClient{
		workflowService: wrapped,
		conn:            conn,
		namespace:       options.Namespace,
		identity:        options.Identity,
		dataConverter:   options.DataConverter,
		logger:          options.Logger,
		metricsScope:    options.MetricsScope,
	}
	c.scheduleClient = newScheduleClient(c)
	return c, nil
}

// NewClientFromWorkflowServiceClient wraps an already-constructed
// WorkflowServiceClient (e.g. for tests, or a caller managing its own gRPC
// connection) instead of dialing one.
func NewClientFromWorkflowServiceClient(service workflowservice.WorkflowServiceClient, options ClientOptions) Client {
	if options.Namespace == "" {
		options.Namespace = "default"
	}
	if options.DataConverter == nil {
		options.DataConverter = converter.Default
	}
	if options.Logger == nil {
		options.Logger = log.NewNopLogger()
	}
	if options.Identity == "" {
		options.Identity = defaultIdentity()
	}
	c := &workflowClient{
		workflowService: rpc.NewWorkflowServiceErrorWrapper(service),
		namespace:       options.Namespace,
		identity:        options.Identity,
		dataConverter:   options.DataConverter,
		logger:          options.Logger,
		metricsScope:    options.MetricsScope,
	}
	c.scheduleClient = newScheduleClient(c)
	return c
}

func defaultIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%d@%s@%s", os.Getpid(), host, SDKName)
}

// getWorkflowFunctionName accepts either a workflow type name (string) or
// the registered workflow function itself, and returns the type name the
// server should schedule tasks under.
func getWorkflowFunctionName(workflow interface{}) (string, error) {
	if name, ok := workflow.(string); ok {
		if name == "" {
			return "", fmt.Errorf("workflow type name must not be empty")
		}
		return name, nil
	}
	fn := reflect.ValueOf(workflow)
	if fn.Kind() != reflect.Func {
		return "", fmt.Errorf("workflow must be a function or a registered type name, got %T", workflow)
	}
	fullName := runtime.FuncForPC(fn.Pointer()).Name()
	// fullName looks like "github.com/some/pkg.MyWorkflow" or, for a
	// method value, "....(*T).MyWorkflow-fm"; keep everything after the
	// last '.', trimming a method-value suffix if present.
	name := fullName
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			name = name[i+1:]
			break
		}
	}
	if len(name) > 3 && name[len(name)-3:] == "-fm" {
		name = name[:len(name)-3]
	}
	return name, nil
}

// AsyncActivityCanceledError is returned by RecordActivityHeartbeat(ByID)
// when the server reports the activity's cancellation was requested.
type AsyncActivityCanceledError struct{}

func (e *AsyncActivityCanceledError) Error() string { return "activity canceled" }

// NewAsyncActivityCanceledError creates a new AsyncActivityCanceledError.
func NewAsyncActivityCanceledError() *AsyncActivityCanceledError {
	return &AsyncActivityCanceledError{}
}

// HistoryEventIterator is a transparent paginated sequence over a workflow
// execution's history events, used internally by WorkflowRun.Get and
// exposed to callers that need raw history (e.g. a replay test harness).
type HistoryEventIterator interface {
	HasNext() bool
	Next() (*historypb.HistoryEvent, error)
}

func newHistoryEventIterator(ctx context.Context, client *workflowClient, workflowID, runID string, isLongPoll bool, filterType enumspb.HistoryEventFilterType) HistoryEventIterator {
	return newPagedIterator(ctx, func(ctx context.Context, token []byte) ([]*historypb.HistoryEvent, []byte, error) {
		req := &workflowservice.GetWorkflowExecutionHistoryRequest{
			Namespace:              client.namespace,
			Execution:              &commonpb.WorkflowExecution{WorkflowId: workflowID, RunId: runID},
			NextPageToken:          token,
			WaitNewEvent:           isLongPoll,
			HistoryEventFilterType: filterType,
		}
		resp, err := client.workflowService.GetWorkflowExecutionHistory(ctx, req)
		if err != nil {
			return nil, nil, err
		}
		return resp.GetHistory().GetEvents(), resp.GetNextPageToken(), nil
	})
}

func (w *workflowClient) ExecuteWorkflow(ctx context.Context, options StartWorkflowOptions, workflow interface{}, args ...interface{}) (WorkflowRun, error) {
	workflowType, err := getWorkflowFunctionName(workflow)
	if err != nil {
		return nil, err
	}
	if options.ID == "" {
		options.ID = uuid.New()
	}
	if options.TaskQueue == "" {
		return nil, fmt.Errorf("StartWorkflowOptions.TaskQueue is required")
	}
	if options.WorkflowRunTimeout == 0 {
		options.WorkflowRunTimeout = options.WorkflowExecutionTimeout
	}
	if options.WorkflowTaskTimeout == 0 {
		options.WorkflowTaskTimeout = 10 * time.Second
	}

	input, err := w.dataConverter.ToPayloads(args...)
	if err != nil {
		return nil, err
	}
	memo, err := encodeMemo(w.dataConverter, options.Memo)
	if err != nil {
		return nil, err
	}
	searchAttrs, err := encodeSearchAttributes(w.dataConverter, options.SearchAttributes)
	if err != nil {
		return nil, err
	}

	request := &workflowservice.StartWorkflowExecutionRequest{
		Namespace:                w.namespace,
		WorkflowId:               options.ID,
		WorkflowType:             &commonpb.WorkflowType{Name: workflowType},
		TaskQueue:                &taskqueuepb.TaskQueue{Name: options.TaskQueue},
		Input:                    input,
		WorkflowExecutionTimeout: durationpbOf(options.WorkflowExecutionTimeout),
		WorkflowRunTimeout:       durationpbOf(options.WorkflowRunTimeout),
		WorkflowTaskTimeout:      durationpbOf(options.WorkflowTaskTimeout),
		Identity:                 w.identity,
		RequestId:                uuid.New(),
		WorkflowIdReusePolicy:    options.WorkflowIDReusePolicy.toProto(),
		RetryPolicy:              options.RetryPolicy.toProto(),
		CronSchedule:             options.CronSchedule,
		Memo:                     memo,
		SearchAttributes:         searchAttrs,
	}

	resp, err := w.workflowService.StartWorkflowExecution(ctx, request)
	if err != nil {
		return nil, err
	}
	return &workflowRunImpl{
		client:       w,
		workflowID:   options.ID,
		firstRunID:   resp.GetRunId(),
	}, nil
}

func (w *workflowClient) GetWorkflow(ctx context.Context, workflowID string, runID string) WorkflowRun {
	return &workflowRunImpl{client: w, workflowID: workflowID, firstRunID: runID}
}

func (w *workflowClient) SignalWorkflow(ctx context.Context, workflowID string, runID string, signalName string, arg interface{}) error {
	input, err := w.dataConverter.ToPayloads(arg)
	if err != nil {
		return err
	}
	_, err = w.workflowService.SignalWorkflowExecution(ctx, &workflowservice.SignalWorkflowExecutionRequest{
		Namespace:         w.namespace,
		WorkflowExecution: &commonpb.WorkflowExecution{WorkflowId: workflowID, RunId: runID},
		SignalName:        signalName,
		Input:             input,
		Identity:          w.identity,
		RequestId:         uuid.New(),
	})
	return err
}

func (w *workflowClient) SignalWithStartWorkflow(ctx context.Context, workflowID string, signalName string, signalArg interface{},
	options StartWorkflowOptions, workflow interface{}, workflowArgs ...interface{}) (*WorkflowExecution, error) {

	workflowType, err := getWorkflowFunctionName(workflow)
	if err != nil {
		return nil, err
	}
	if options.TaskQueue == "" {
		return nil, fmt.Errorf("StartWorkflowOptions.TaskQueue is required")
	}
	if options.WorkflowRunTimeout == 0 {
		options.WorkflowRunTimeout = options.WorkflowExecutionTimeout
	}
	if options.WorkflowTaskTimeout == 0 {
		options.WorkflowTaskTimeout = 10 * time.Second
	}

	signalInput, err := w.dataConverter.ToPayloads(signalArg)
	if err != nil {
		return nil, err
	}
	workflowInput, err := w.dataConverter.ToPayloads(workflowArgs...)
	if err != nil {
		return nil, err
	}
	memo, err := encodeMemo(w.dataConverter, options.Memo)
	if err != nil {
		return nil, err
	}
	searchAttrs, err := encodeSearchAttributes(w.dataConverter, options.SearchAttributes)
	if err != nil {
		return nil, err
	}

	resp, err := w.workflowService.SignalWithStartWorkflowExecution(ctx, &workflowservice.SignalWithStartWorkflowExecutionRequest{
		Namespace:                w.namespace,
		WorkflowId:               workflowID,
		WorkflowType:             &commonpb.WorkflowType{Name: workflowType},
		TaskQueue:                &taskqueuepb.TaskQueue{Name: options.TaskQueue},
		Input:                    workflowInput,
		WorkflowExecutionTimeout: durationpbOf(options.WorkflowExecutionTimeout),
		WorkflowRunTimeout:       durationpbOf(options.WorkflowRunTimeout),
		WorkflowTaskTimeout:      durationpbOf(options.WorkflowTaskTimeout),
		Identity:                 w.identity,
		RequestId:                uuid.New(),
		WorkflowIdReusePolicy:    options.WorkflowIDReusePolicy.toProto(),
		SignalName:               signalName,
		SignalInput:              signalInput,
		RetryPolicy:              options.RetryPolicy.toProto(),
		CronSchedule:             options.CronSchedule,
		Memo:                     memo,
		SearchAttributes:         searchAttrs,
	})
	if err != nil {
		return nil, err
	}
	return &WorkflowExecution{ID: workflowID, RunID: resp.GetRunId()}, nil
}

// UpdateWorkflow implements the three-phase Update protocol's client
// side: it sends UpdateWorkflowExecution, which itself long polls the
// server until the update reaches WaitForStage (the server treats
// context deadline exceeded on that call as "still validating, try
// again" the same way a workflow/activity task poll does).
func (w *workflowClient) UpdateWorkflow(ctx context.Context, options UpdateWorkflowOptions) (WorkflowUpdateHandle, error) {
	if options.UpdateID == "" {
		options.UpdateID = uuid.New()
	}
	input, err := w.dataConverter.ToPayloads(options.Args...)
	if err != nil {
		return nil, err
	}

	waitStage := enumspb.UPDATE_WORKFLOW_EXECUTION_LIFECYCLE_STAGE_ACCEPTED
	if options.WaitForStage == UpdateWorkflowExecutionLifecycleStageCompleted {
		waitStage = enumspb.UPDATE_WORKFLOW_EXECUTION_LIFECYCLE_STAGE_COMPLETED
	}

	req := &workflowservice.UpdateWorkflowExecutionRequest{
		Namespace: w.namespace,
		WorkflowExecution: &commonpb.WorkflowExecution{
			WorkflowId: options.WorkflowID,
			RunId:      options.RunID,
		},
		Request: &updatepb.Request{
			Meta: &updatepb.Meta{UpdateId: options.UpdateID, Identity: w.identity},
			Input: &updatepb.Input{
				Name: options.UpdateName,
				Args: input,
			},
		},
		WaitPolicy: &updatepb.WaitPolicy{LifecycleStage: waitStage},
	}

	var resp *workflowservice.UpdateWorkflowExecutionResponse
	pollErr := backoff.PollUntilCancelled(ctx, func() error {
		var callErr error
		resp, callErr = w.workflowService.UpdateWorkflowExecution(ctx, req)
		return callErr
	}, nil)
	if pollErr != nil {
		return nil, pollErr
	}

	return &workflowUpdateHandle{
		client:     w,
		workflowID: options.WorkflowID,
		runID:      resp.GetUpdateRef().GetWorkflowExecution().GetRunId(),
		updateID:   options.UpdateID,
		outcome:    resp.GetOutcome(),
	}, nil
}

func (w *workflowClient) CancelWorkflow(ctx context.Context, workflowID string, runID string) error {
	_, err := w.workflowService.RequestCancelWorkflowExecution(ctx, &workflowservice.RequestCancelWorkflowExecutionRequest{
		Namespace:         w.namespace,
		WorkflowExecution: &commonpb.WorkflowExecution{WorkflowId: workflowID, RunId: runID},
		Identity:          w.identity,
		RequestId:         uuid.New(),
	})
	return err
}

func (w *workflowClient) TerminateWorkflow(ctx context.Context, workflowID string, runID string, reason string, details ...interface{}) error {
	payloads, err := w.dataConverter.ToPayloads(details...)
	if err != nil {
		return err
	}
	_, err = w.workflowService.TerminateWorkflowExecution(ctx, &workflowservice.TerminateWorkflowExecutionRequest{
		Namespace:         w.namespace,
		WorkflowExecution: &commonpb.WorkflowExecution{WorkflowId: workflowID, RunId: runID},
		Reason:            reason,
		Details:           payloads,
		Identity:          w.identity,
	})
	return err
}

func (w *workflowClient) GetWorkflowHistory(ctx context.Context, workflowID string, runID string, isLongPoll bool, filterType enumspb.HistoryEventFilterType) HistoryEventIterator {
	return newHistoryEventIterator(ctx, w, workflowID, runID, isLongPoll, filterType)
}

func (w *workflowClient) CompleteActivity(ctx context.Context, taskToken []byte, result interface{}, err error) error {
	if err == ErrActivityResultPending {
		return nil
	}
	if err != nil {
		if _, isCanceled := err.(*CanceledError); isCanceled {
			_, serr := w.workflowService.RespondActivityTaskCanceled(ctx, &workflowservice.RespondActivityTaskCanceledRequest{
				TaskToken: taskToken,
				Identity:  w.identity,
				Namespace: w.namespace,
			})
			return serr
		}
		failure := convertErrorToFailure(err, w.dataConverter)
		_, serr := w.workflowService.RespondActivityTaskFailed(ctx, &workflowservice.RespondActivityTaskFailedRequest{
			TaskToken: taskToken,
			Failure:   failure,
			Identity:  w.identity,
			Namespace: w.namespace,
		})
		return serr
	}
	payloads, perr := w.dataConverter.ToPayloads(result)
	if perr != nil {
		return perr
	}
	_, serr := w.workflowService.RespondActivityTaskCompleted(ctx, &workflowservice.RespondActivityTaskCompletedRequest{
		TaskToken: taskToken,
		Result:    payloads,
		Identity:  w.identity,
		Namespace: w.namespace,
	})
	return serr
}

func (w *workflowClient) CompleteActivityByID(ctx context.Context, namespace, workflowID, runID, activityID string, result interface{}, err error) error {
	if namespace == "" {
		namespace = w.namespace
	}
	if err == ErrActivityResultPending {
		return nil
	}
	if err != nil {
		if _, isCanceled := err.(*CanceledError); isCanceled {
			_, serr := w.workflowService.RespondActivityTaskCanceledById(ctx, &workflowservice.RespondActivityTaskCanceledByIdRequest{
				Namespace: namespace, WorkflowId: workflowID, RunId: runID, ActivityId: activityID, Identity: w.identity,
			})
			return serr
		}
		failure := convertErrorToFailure(err, w.dataConverter)
		_, serr := w.workflowService.RespondActivityTaskFailedById(ctx, &workflowservice.RespondActivityTaskFailedByIdRequest{
			Namespace: namespace, WorkflowId: workflowID, RunId: runID, ActivityId: activityID, Failure: failure, Identity: w.identity,
		})
		return serr
	}
	payloads, perr := w.dataConverter.ToPayloads(result)
	if perr != nil {
		return perr
	}
	_, serr := w.workflowService.RespondActivityTaskCompletedById(ctx, &workflowservice.RespondActivityTaskCompletedByIdRequest{
		Namespace: namespace, WorkflowId: workflowID, RunId: runID, ActivityId: activityID, Result: payloads, Identity: w.identity,
	})
	return serr
}

func (w *workflowClient) RecordActivityHeartbeat(ctx context.Context, taskToken []byte, details ...interface{}) error {
	payloads, err := w.dataConverter.ToPayloads(details...)
	if err != nil {
		return err
	}
	resp, err := w.workflowService.RecordActivityTaskHeartbeat(ctx, &workflowservice.RecordActivityTaskHeartbeatRequest{
		TaskToken: taskToken,
		Details:   payloads,
		Identity:  w.identity,
		Namespace: w.namespace,
	})
	if err != nil {
		return err
	}
	if resp.GetCancelRequested() {
		return NewAsyncActivityCanceledError()
	}
	return nil
}

func (w *workflowClient) RecordActivityHeartbeatByID(ctx context.Context, namespace, workflowID, runID, activityID string, details ...interface{}) error {
	if namespace == "" {
		namespace = w.namespace
	}
	payloads, err := w.dataConverter.ToPayloads(details...)
	if err != nil {
		return err
	}
	resp, err := w.workflowService.RecordActivityTaskHeartbeatById(ctx, &workflowservice.RecordActivityTaskHeartbeatByIdRequest{
		Namespace: namespace, WorkflowId: workflowID, RunId: runID, ActivityId: activityID, Details: payloads, Identity: w.identity,
	})
	if err != nil {
		return err
	}
	if resp.GetCancelRequested() {
		return NewAsyncActivityCanceledError()
	}
	return nil
}

func (w *workflowClient) QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.Value, error) {
	resp, err := w.QueryWorkflowWithOptions(ctx, &QueryWorkflowWithOptionsRequest{
		WorkflowID: workflowID,
		RunID:      runID,
		QueryType:  queryType,
		Args:       args,
	})
	if err != nil {
		return nil, err
	}
	if resp.QueryRejected != nil {
		return nil, resp.QueryRejected
	}
	return resp.QueryResult, nil
}

func (w *workflowClient) QueryWorkflowWithOptions(ctx context.Context, request *QueryWorkflowWithOptionsRequest) (*QueryWorkflowWithOptionsResponse, error) {
	input, err := w.dataConverter.ToPayloads(request.Args...)
	if err != nil {
		return nil, err
	}
	resp, err := w.workflowService.QueryWorkflow(ctx, &workflowservice.QueryWorkflowRequest{
		Namespace: w.namespace,
		Execution: &commonpb.WorkflowExecution{WorkflowId: request.WorkflowID, RunId: request.RunID},
		Query: &querypb.WorkflowQuery{
			QueryType: request.QueryType,
			QueryArgs: input,
		},
		QueryRejectCondition: request.QueryRejectCondition,
	})
	if err != nil {
		return nil, err
	}
	if resp.GetQueryRejected() != nil {
		return &QueryWorkflowWithOptionsResponse{
			QueryRejected: &QueryRejectedError{status: resp.GetQueryRejected().GetStatus()},
		}, nil
	}
	return &QueryWorkflowWithOptionsResponse{
		QueryResult: converter.NewValue(firstPayload(resp.GetQueryResult()), w.dataConverter),
	}, nil
}

func (w *workflowClient) DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	return w.workflowService.DescribeWorkflowExecution(ctx, &workflowservice.DescribeWorkflowExecutionRequest{
		Namespace: w.namespace,
		Execution: &commonpb.WorkflowExecution{WorkflowId: workflowID, RunId: runID},
	})
}

func (w *workflowClient) ListWorkflow(ctx context.Context, request *workflowservice.ListWorkflowExecutionsRequest) (*workflowservice.ListWorkflowExecutionsResponse, error) {
	if request.Namespace == "" {
		request.Namespace = w.namespace
	}
	return w.workflowService.ListWorkflowExecutions(ctx, request)
}

func (w *workflowClient) CountWorkflow(ctx context.Context, request *workflowservice.CountWorkflowExecutionsRequest) (*workflowservice.CountWorkflowExecutionsResponse, error) {
	if request.Namespace == "" {
		request.Namespace = w.namespace
	}
	return w.workflowService.CountWorkflowExecutions(ctx, request)
}

func (w *workflowClient) ScheduleClient() ScheduleClient {
	return w.scheduleClient
}

func (w *workflowClient) WorkflowService() workflowservice.WorkflowServiceClient {
	return w.workflowService
}

func (w *workflowClient) CloseConnection() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

// workflowRunImpl implements WorkflowRun by polling GetWorkflowHistory for
// the final WorkflowExecutionCompleted/Failed/TimedOut/Terminated/
// CanceledEvent, following the ContinueAsNew chain transparently.
type workflowRunImpl struct {
	client     *workflowClient
	workflowID string
	firstRunID string
}

func (r *workflowRunImpl) GetID() string    { return r.workflowID }
func (r *workflowRunImpl) GetRunID() string { return r.firstRunID }

func (r *workflowRunImpl) Get(ctx context.Context, valuePtr interface{}) error {
	runID := r.firstRunID
	iter := r.client.GetWorkflowHistory(ctx, r.workflowID, runID, true, enumspb.HISTORY_EVENT_FILTER_TYPE_CLOSE_EVENT)
	for iter.HasNext() {
		event, err := iter.Next()
		if err != nil {
			return err
		}
		switch attr := event.GetAttributes().(type) {
		case *historypb.HistoryEvent_WorkflowExecutionCompletedEventAttributes:
			if valuePtr == nil {
				return nil
			}
			return r.client.dataConverter.FromPayloads(attr.WorkflowExecutionCompletedEventAttributes.GetResult(), valuePtr)
		case *historypb.HistoryEvent_WorkflowExecutionFailedEventAttributes:
			return convertFailureToError(attr.WorkflowExecutionFailedEventAttributes.GetFailure(), r.client.dataConverter)
		case *historypb.HistoryEvent_WorkflowExecutionCanceledEventAttributes:
			return NewCanceledError(ErrorDetailsValues(nil))
		case *historypb.HistoryEvent_WorkflowExecutionTerminatedEventAttributes:
			return fmt.Errorf("workflow terminated: %s", attr.WorkflowExecutionTerminatedEventAttributes.GetReason())
		case *historypb.HistoryEvent_WorkflowExecutionTimedOutEventAttributes:
			return NewTimeoutError(enumspb.TIMEOUT_TYPE_START_TO_CLOSE, nil)
		case *historypb.HistoryEvent_WorkflowExecutionContinuedAsNewEventAttributes:
			runID = attr.WorkflowExecutionContinuedAsNewEventAttributes.GetNewExecutionRunId()
			iter = r.client.GetWorkflowHistory(ctx, r.workflowID, runID, true, enumspb.HISTORY_EVENT_FILTER_TYPE_CLOSE_EVENT)
		}
	}
	return fmt.Errorf("workflow history exhausted without a close event")
}

type workflowUpdateHandle struct {
	client     *workflowClient
	workflowID string
	runID      string
	updateID   string
	outcome    *updatepb.Outcome
}

func (h *workflowUpdateHandle) WorkflowID() string { return h.workflowID }
func (h *workflowUpdateHandle) RunID() string      { return h.runID }
func (h *workflowUpdateHandle) UpdateID() string   { return h.updateID }

func (h *workflowUpdateHandle) Get(ctx context.Context, valuePtr interface{}) error {
	outcome := h.outcome
	if outcome == nil {
		req := &workflowservice.PollWorkflowExecutionUpdateRequest{
			Namespace: h.client.namespace,
			UpdateRef: &updatepb.UpdateRef{
				WorkflowExecution: &commonpb.WorkflowExecution{WorkflowId: h.workflowID, RunId: h.runID},
				UpdateId:          h.updateID,
			},
			Identity: h.client.identity,
			WaitPolicy: &updatepb.WaitPolicy{
				LifecycleStage: enumspb.UPDATE_WORKFLOW_EXECUTION_LIFECYCLE_STAGE_COMPLETED,
			},
		}
		pollErr := backoff.PollUntilCancelled(ctx, func() error {
			resp, callErr := h.client.workflowService.PollWorkflowExecutionUpdate(ctx, req)
			if callErr != nil {
				return callErr
			}
			if resp.GetOutcome() == nil {
				return context.DeadlineExceeded
			}
			outcome = resp.GetOutcome()
			return nil
		}, nil)
		if pollErr != nil {
			return pollErr
		}
	}
	if failure := outcome.GetFailure(); failure != nil {
		return &WorkflowUpdateFailedError{cause: convertFailureToError(failure, h.client.dataConverter)}
	}
	if valuePtr == nil {
		return nil
	}
	return h.client.dataConverter.FromPayloads(outcome.GetSuccess(), valuePtr)
}

func (p WorkflowIDReusePolicy) toProto() enumspb.WorkflowIdReusePolicy {
	switch p {
	case WorkflowIDReusePolicyAllowDuplicate:
		return enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE
	case WorkflowIDReusePolicyAllowDuplicateFailedOnly:
		return enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY
	case WorkflowIDReusePolicyRejectDuplicate:
		return enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE
	case WorkflowIDReusePolicyTerminateIfRunning:
		return enumspb.WORKFLOW_ID_REUSE_POLICY_TERMINATE_IF_RUNNING
	default:
		panic(fmt.Sprintf("unknown workflow id reuse policy %v", p))
	}
}

func (p ParentClosePolicy) toProto() enumspb.ParentClosePolicy {
	switch p {
	case ParentClosePolicyAbandon:
		return enumspb.PARENT_CLOSE_POLICY_ABANDON
	case ParentClosePolicyRequestCancel:
		return enumspb.PARENT_CLOSE_POLICY_REQUEST_CANCEL
	case ParentClosePolicyTerminate:
		return enumspb.PARENT_CLOSE_POLICY_TERMINATE
	default:
		panic(fmt.Sprintf("unknown parent close policy %v", p))
	}
}

func (r *RetryPolicy) toProto() *commonpb.RetryPolicy {
	if r == nil {
		return nil
	}
	return &commonpb.RetryPolicy{
		InitialInterval:        durationpbOf(r.InitialInterval),
		BackoffCoefficient:     r.BackoffCoefficient,
		MaximumInterval:        durationpbOf(r.MaximumInterval),
		MaximumAttempts:        r.MaximumAttempts,
		NonRetryableErrorTypes: r.NonRetryableErrorTypes,
	}
}

func encodeMemo(dc converter.DataConverter, memo map[string]interface{}) (*commonpb.Memo, error) {
	if len(memo) == 0 {
		return nil, nil
	}
	fields := make(map[string]*commonpb.Payload, len(memo))
	for k, v := range memo {
		p, err := dc.ToPayload(v)
		if err != nil {
			return nil, fmt.Errorf("memo[%s]: %w", k, err)
		}
		fields[k] = p
	}
	return &commonpb.Memo{Fields: fields}, nil
}

func encodeSearchAttributes(dc converter.DataConverter, attrs map[string]interface{}) (*commonpb.SearchAttributes, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	fields := make(map[string]*commonpb.Payload, len(attrs))
	for k, v := range attrs {
		p, err := dc.ToPayload(v)
		if err != nil {
			return nil, fmt.Errorf("searchAttributes[%s]: %w", k, err)
		}
		fields[k] = p
	}
	return &commonpb.SearchAttributes{IndexedFields: fields}, nil
}

func firstPayload(payloads *commonpb.Payloads) *commonpb.Payload {
	if payloads == nil || len(payloads.GetPayloads()) == 0 {
		return nil
	}
	return payloads.GetPayloads()[0]
}

func durationpbOf(d time.Duration) *durationpb.Duration {
	if d == 0 {
		return nil
	}
	return durationpb.New(d)
}

func timestamppbOf(t time.Time) *timestamppb.Timestamp {
	if t.IsZero() {
		return nil
	}
	return timestamppb.New(t)
}
