package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/pborman/uuid"
	"github.com/robfig/cron"
	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	schedulepb "go.temporal.io/api/schedule/v1"
	taskqueuepb "go.temporal.io/api/taskqueue/v1"
	"go.temporal.io/api/workflowservice/v1"
)

type (
	// ScheduleClient creates and manages Schedules: server-side cron-like
	// definitions that start a workflow execution on a recurring calendar
	// or interval spec, without a client process needing to stay up to
	// fire them.
	ScheduleClient interface {
		// Create registers a new Schedule and returns a handle to it.
		Create(ctx context.Context, options ScheduleOptions) (ScheduleHandle, error)
		// GetHandle returns a handle to an existing Schedule by ID, without
		// making a call; use Describe on the handle to validate it exists.
		GetHandle(ctx context.Context, scheduleID string) ScheduleHandle
		// List returns an iterator over every Schedule in the namespace.
		List(ctx context.Context, pageSize int) ScheduleListIterator
	}

	// ScheduleOptions configures a new Schedule.
	ScheduleOptions struct {
		ID     string
		Spec   ScheduleSpec
		Action ScheduleWorkflowAction
		// Paused creates the Schedule without it firing until Unpause is
		// called.
		Paused bool
		// Overlap controls what happens when an action would start before
		// the previous one finished. Default: ScheduleOverlapPolicySkip.
		Overlap ScheduleOverlapPolicy
		// CatchupWindow bounds how far into the past a Schedule paused
		// across missed actions will backfill on Unpause. Default: 1 year.
		CatchupWindow time.Duration
		Memo          map[string]interface{}
		SearchAttributes map[string]interface{}
	}

	// ScheduleSpec is the calendar/interval/cron definition of when a
	// Schedule's action fires.
	ScheduleSpec struct {
		// CronExpressions are standard 5 (or 6, with seconds) field cron
		// expressions, validated client-side with robfig/cron before being
		// sent so a typo surfaces immediately instead of at the next
		// scheduled fire time.
		CronExpressions []string
		// Intervals fire the action every Every, offset from the epoch by
		// Offset.
		Intervals []ScheduleIntervalSpec
		// StartAt/EndAt bound the range of time the spec applies over; the
		// zero value means unbounded.
		StartAt time.Time
		EndAt   time.Time
		// Jitter randomly delays each action by up to this duration.
		Jitter time.Duration
		TimeZoneName string
	}

	// ScheduleIntervalSpec fires every Every, phase-shifted by Offset.
	ScheduleIntervalSpec struct {
		Every  time.Duration
		Offset time.Duration
	}

	// ScheduleOverlapPolicy controls concurrent-action behavior.
	ScheduleOverlapPolicy int

	// ScheduleWorkflowAction starts a workflow execution as a Schedule's
	// action.
	ScheduleWorkflowAction struct {
		ID                 string
		Workflow           interface{}
		Args               []interface{}
		TaskQueue          string
		WorkflowExecutionTimeout time.Duration
		WorkflowRunTimeout       time.Duration
		WorkflowTaskTimeout      time.Duration
		RetryPolicy        *RetryPolicy
		Memo               map[string]interface{}
		SearchAttributes   map[string]interface{}
	}

	// ScheduleHandle operates on one Schedule.
	ScheduleHandle interface {
		GetID() string
		// Describe fetches the Schedule's current spec, action, state and
		// recent/upcoming action times.
		Describe(ctx context.Context) (*ScheduleDescription, error)
		// Update performs a read-modify-write: it calls updateFn with the
		// Schedule's current description and applies whatever Spec/Action/
		// State updateFn returns, using the description's fetched conflict
		// token so a concurrent update is rejected rather than silently
		// overwritten.
		Update(ctx context.Context, updateFn func(*ScheduleDescription) (*ScheduleUpdate, error)) error
		// Trigger fires the Schedule's action immediately, once, outside
		// its normal spec.
		Trigger(ctx context.Context, overlap ScheduleOverlapPolicy) error
		// Backfill runs the action once for each interval the spec would
		// have fired within the given window, as if the Schedule had been
		// running the whole time.
		Backfill(ctx context.Context, backfills []ScheduleBackfill) error
		Pause(ctx context.Context, note string) error
		Unpause(ctx context.Context, note string) error
		Delete(ctx context.Context) error
	}

	// ScheduleDescription is a Schedule's full current state.
	ScheduleDescription struct {
		ID            string
		Schedule      *schedulepb.Schedule
		Info          *schedulepb.ScheduleInfo
		ConflictToken []byte
		Memo          map[string]*commonpb.Payload
		SearchAttributes map[string]*commonpb.Payload
	}

	// ScheduleUpdate is the result of a read-modify-write Update closure.
	ScheduleUpdate struct {
		Schedule *schedulepb.Schedule
	}

	// ScheduleBackfill names one window to backfill.
	ScheduleBackfill struct {
		Start   time.Time
		End     time.Time
		Overlap ScheduleOverlapPolicy
	}

	// ScheduleListEntry is one row of ScheduleListIterator.
	ScheduleListEntry struct {
		ID   string
		Info *schedulepb.ScheduleListInfo
		Memo map[string]*commonpb.Payload
	}

	// ScheduleListIterator pages over every Schedule in a namespace.
	ScheduleListIterator interface {
		HasNext() bool
		Next() (*ScheduleListEntry, error)
	}
)

const (
	// ScheduleOverlapPolicySkip drops a new action if the previous one is
	// still running. The default.
	ScheduleOverlapPolicySkip ScheduleOverlapPolicy = iota
	// ScheduleOverlapPolicyBufferOne queues at most one overlapping action
	// to run after the current one finishes.
	ScheduleOverlapPolicyBufferOne
	// ScheduleOverlapPolicyBufferAll queues every overlapping action.
	ScheduleOverlapPolicyBufferAll
	// ScheduleOverlapPolicyCancelOther cancels the currently running
	// workflow and starts the new one.
	ScheduleOverlapPolicyCancelOther
	// ScheduleOverlapPolicyTerminateOther terminates the currently running
	// workflow and starts the new one.
	ScheduleOverlapPolicyTerminateOther
	// ScheduleOverlapPolicyAllowAll runs every action concurrently,
	// unbounded.
	ScheduleOverlapPolicyAllowAll
)

func (p ScheduleOverlapPolicy) toProto() enumspb.ScheduleOverlapPolicy {
	switch p {
	case ScheduleOverlapPolicySkip:
		return enumspb.SCHEDULE_OVERLAP_POLICY_SKIP
	case ScheduleOverlapPolicyBufferOne:
		return enumspb.SCHEDULE_OVERLAP_POLICY_BUFFER_ONE
	case ScheduleOverlapPolicyBufferAll:
		return enumspb.SCHEDULE_OVERLAP_POLICY_BUFFER_ALL
	case ScheduleOverlapPolicyCancelOther:
		return enumspb.SCHEDULE_OVERLAP_POLICY_CANCEL_OTHER
	case ScheduleOverlapPolicyTerminateOther:
		return enumspb.SCHEDULE_OVERLAP_POLICY_TERMINATE_OTHER
	case ScheduleOverlapPolicyAllowAll:
		return enumspb.SCHEDULE_OVERLAP_POLICY_ALLOW_ALL
	default:
		return enumspb.SCHEDULE_OVERLAP_POLICY_SKIP
	}
}

type scheduleClientImpl struct {
	client *workflowClient
}

func newScheduleClient(c *workflowClient) ScheduleClient {
	return &scheduleClientImpl{client: c}
}

func (s *scheduleClientImpl) Create(ctx context.Context, options ScheduleOptions) (ScheduleHandle, error) {
	if options.ID == "" {
		options.ID = uuid.New()
	}
	spec, err := options.Spec.toProto()
	if err != nil {
		return nil, err
	}
	action, err := s.client.scheduleWorkflowActionToProto(options.Action)
	if err != nil {
		return nil, err
	}
	memo, err := encodeMemo(s.client.dataConverter, options.Memo)
	if err != nil {
		return nil, err
	}
	searchAttrs, err := encodeSearchAttributes(s.client.dataConverter, options.SearchAttributes)
	if err != nil {
		return nil, err
	}
	catchupWindow := options.CatchupWindow
	if catchupWindow == 0 {
		catchupWindow = 365 * 24 * time.Hour
	}

	_, err = s.client.workflowService.CreateSchedule(ctx, &workflowservice.CreateScheduleRequest{
		Namespace:  s.client.namespace,
		ScheduleId: options.ID,
		Schedule: &schedulepb.Schedule{
			Spec:   spec,
			Action: action,
			Policies: &schedulepb.SchedulePolicies{
				OverlapPolicy: options.Overlap.toProto(),
				CatchupWindow: durationpbOf(catchupWindow),
			},
			State: &schedulepb.ScheduleState{
				Paused: options.Paused,
			},
		},
		Identity:         s.client.identity,
		RequestId:        uuid.New(),
		Memo:             memo,
		SearchAttributes: searchAttrs,
	})
	if err != nil {
		return nil, err
	}
	return &scheduleHandleImpl{client: s.client, id: options.ID}, nil
}

func (s *scheduleClientImpl) GetHandle(ctx context.Context, scheduleID string) ScheduleHandle {
	return &scheduleHandleImpl{client: s.client, id: scheduleID}
}

func (s *scheduleClientImpl) List(ctx context.Context, pageSize int) ScheduleListIterator {
	if pageSize <= 0 {
		pageSize = 100
	}
	return newPagedIterator(ctx, func(ctx context.Context, token []byte) ([]*ScheduleListEntry, []byte, error) {
		resp, err := s.client.workflowService.ListSchedules(ctx, &workflowservice.ListSchedulesRequest{
			Namespace:     s.client.namespace,
			MaximumPageSize: int32(pageSize),
			NextPageToken: token,
		})
		if err != nil {
			return nil, nil, err
		}
		entries := make([]*ScheduleListEntry, 0, len(resp.GetSchedules()))
		for _, e := range resp.GetSchedules() {
			entries = append(entries, &ScheduleListEntry{
				ID:   e.GetScheduleId(),
				Info: e.GetInfo(),
				Memo: e.GetMemo().GetFields(),
			})
		}
		return entries, resp.GetNextPageToken(), nil
	})
}

func (spec ScheduleSpec) toProto() (*schedulepb.ScheduleSpec, error) {
	for _, expr := range spec.CronExpressions {
		if _, err := cron.ParseStandard(expr); err != nil {
			if _, err2 := cron.Parse(expr); err2 != nil {
				return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
			}
		}
	}
	proto := &schedulepb.ScheduleSpec{
		CronString:   spec.CronExpressions,
		Jitter:       durationpbOf(spec.Jitter),
		TimezoneName: spec.TimeZoneName,
	}
	if !spec.StartAt.IsZero() {
		proto.StartTime = timestamppbOf(spec.StartAt)
	}
	if !spec.EndAt.IsZero() {
		proto.EndTime = timestamppbOf(spec.EndAt)
	}
	for _, iv := range spec.Intervals {
		proto.Interval = append(proto.Interval, &schedulepb.IntervalSpec{
			Interval: durationpbOf(iv.Every),
			Phase:    durationpbOf(iv.Offset),
		})
	}
	return proto, nil
}

func (w *workflowClient) scheduleWorkflowActionToProto(action ScheduleWorkflowAction) (*schedulepb.ScheduleAction, error) {
	workflowType, err := getWorkflowFunctionName(action.Workflow)
	if err != nil {
		return nil, err
	}
	if action.ID == "" {
		action.ID = workflowType
	}
	input, err := w.dataConverter.ToPayloads(action.Args...)
	if err != nil {
		return nil, err
	}
	memo, err := encodeMemo(w.dataConverter, action.Memo)
	if err != nil {
		return nil, err
	}
	searchAttrs, err := encodeSearchAttributes(w.dataConverter, action.SearchAttributes)
	if err != nil {
		return nil, err
	}
	return &schedulepb.ScheduleAction{
		Action: &schedulepb.ScheduleAction_StartWorkflow{
			StartWorkflow: &workflowservice.StartWorkflowExecutionRequest{
				Namespace:                w.namespace,
				WorkflowId:               action.ID,
				WorkflowType:             &commonpb.WorkflowType{Name: workflowType},
				TaskQueue:                &taskqueuepb.TaskQueue{Name: action.TaskQueue},
				Input:                    input,
				WorkflowExecutionTimeout: durationpbOf(action.WorkflowExecutionTimeout),
				WorkflowRunTimeout:       durationpbOf(action.WorkflowRunTimeout),
				WorkflowTaskTimeout:      durationpbOf(action.WorkflowTaskTimeout),
				RetryPolicy:              action.RetryPolicy.toProto(),
				Memo:                     memo,
				SearchAttributes:         searchAttrs,
			},
		},
	}, nil
}

type scheduleHandleImpl struct {
	client *workflowClient
	id     string
}

func (h *scheduleHandleImpl) GetID() string { return h.id }

func (h *scheduleHandleImpl) Describe(ctx context.Context) (*ScheduleDescription, error) {
	resp, err := h.client.workflowService.DescribeSchedule(ctx, &workflowservice.DescribeScheduleRequest{
		Namespace:  h.client.namespace,
		ScheduleId: h.id,
	})
	if err != nil {
		return nil, err
	}
	return &ScheduleDescription{
		ID:               h.id,
		Schedule:         resp.GetSchedule(),
		Info:             resp.GetInfo(),
		ConflictToken:    resp.GetConflictToken(),
		Memo:             resp.GetMemo().GetFields(),
		SearchAttributes: resp.GetSearchAttributes().GetIndexedFields(),
	}, nil
}

func (h *scheduleHandleImpl) Update(ctx context.Context, updateFn func(*ScheduleDescription) (*ScheduleUpdate, error)) error {
	desc, err := h.Describe(ctx)
	if err != nil {
		return err
	}
	update, err := updateFn(desc)
	if err != nil {
		return err
	}
	if update == nil {
		return nil
	}
	_, err = h.client.workflowService.UpdateSchedule(ctx, &workflowservice.UpdateScheduleRequest{
		Namespace:     h.client.namespace,
		ScheduleId:    h.id,
		Schedule:      update.Schedule,
		ConflictToken: desc.ConflictToken,
		Identity:      h.client.identity,
		RequestId:     uuid.New(),
	})
	return err
}

func (h *scheduleHandleImpl) Trigger(ctx context.Context, overlap ScheduleOverlapPolicy) error {
	_, err := h.client.workflowService.PatchSchedule(ctx, &workflowservice.PatchScheduleRequest{
		Namespace:  h.client.namespace,
		ScheduleId: h.id,
		Patch: &schedulepb.SchedulePatch{
			TriggerImmediately: &schedulepb.TriggerImmediatelyRequest{
				OverlapPolicy: overlap.toProto(),
			},
		},
		Identity:  h.client.identity,
		RequestId: uuid.New(),
	})
	return err
}

func (h *scheduleHandleImpl) Backfill(ctx context.Context, backfills []ScheduleBackfill) error {
	requests := make([]*schedulepb.BackfillRequest, 0, len(backfills))
	for _, b := range backfills {
		requests = append(requests, &schedulepb.BackfillRequest{
			StartTime:     timestamppbOf(b.Start),
			EndTime:       timestamppbOf(b.End),
			OverlapPolicy: b.Overlap.toProto(),
		})
	}
	_, err := h.client.workflowService.PatchSchedule(ctx, &workflowservice.PatchScheduleRequest{
		Namespace:  h.client.namespace,
		ScheduleId: h.id,
		Patch:      &schedulepb.SchedulePatch{BackfillRequest: requests},
		Identity:   h.client.identity,
		RequestId:  uuid.New(),
	})
	return err
}

func (h *scheduleHandleImpl) Pause(ctx context.Context, note string) error {
	_, err := h.client.workflowService.PatchSchedule(ctx, &workflowservice.PatchScheduleRequest{
		Namespace:  h.client.namespace,
		ScheduleId: h.id,
		Patch: &schedulepb.SchedulePatch{
			Pause: note,
		},
		Identity:  h.client.identity,
		RequestId: uuid.New(),
	})
	return err
}

func (h *scheduleHandleImpl) Unpause(ctx context.Context, note string) error {
	_, err := h.client.workflowService.PatchSchedule(ctx, &workflowservice.PatchScheduleRequest{
		Namespace:  h.client.namespace,
		ScheduleId: h.id,
		Patch: &schedulepb.SchedulePatch{
			Unpause: note,
		},
		Identity:  h.client.identity,
		RequestId: uuid.New(),
	})
	return err
}

func (h *scheduleHandleImpl) Delete(ctx context.Context) error {
	_, err := h.client.workflowService.DeleteSchedule(ctx, &workflowservice.DeleteScheduleRequest{
		Namespace:  h.client.namespace,
		ScheduleId: h.id,
		Identity:   h.client.identity,
	})
	return err
}
