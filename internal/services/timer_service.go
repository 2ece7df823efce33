package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yukikurage/priority-matrix/internal/constants"
	"github.com/yukikurage/priority-matrix/internal/dto"
	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/repository"
	"github.com/yukikurage/priority-matrix/internal/utils"
	"go.uber.org/zap"
)

// TimerService drives the idle/running state of task timers
type TimerService struct {
	taskRepo  repository.TaskRepository
	publisher Publisher
	log       *zap.Logger
	now       func() time.Time
}

// NewTimerService creates a new TimerService
func NewTimerService(taskRepo repository.TaskRepository, publisher Publisher, log *zap.Logger) *TimerService {
	return &TimerService{
		taskRepo:  taskRepo,
		publisher: publisherOrNoop(publisher),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start puts a task into the running state. Starting a running timer moves
// its start time to now.
func (s *TimerService) Start(ctx context.Context, identity string, taskID uint64) (*dto.TimerStartedDTO, error) {
	task, err := findVisibleTask(ctx, s.taskRepo, identity, taskID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fields := claimFields(task, identity, map[string]any{
		"active_timer_start": now,
		"last_worked_at":     now,
	})
	if err := s.taskRepo.UpdateVisible(ctx, taskID, identity, fields); err != nil {
		return nil, mapWriteError(err, "failed to start timer")
	}

	s.publisher.Publish(ScopeOf(task))
	return &dto.TimerStartedDTO{TaskID: taskID, StartTime: now}, nil
}

// Stop ends the running session, accumulates its whole seconds, counts a
// pomodoro when it lasted long enough and logs it. Of two racing stops only
// one succeeds; the other sees ErrNoActiveTimer.
func (s *TimerService) Stop(ctx context.Context, identity string, taskID uint64) (*dto.TimerStoppedDTO, error) {
	task, err := findVisibleTask(ctx, s.taskRepo, identity, taskID)
	if err != nil {
		return nil, err
	}
	if !task.IsRunning() {
		return nil, ErrNoActiveTimer
	}

	end := s.now()
	duration := int64(end.Sub(*task.ActiveTimerStart) / time.Second)
	if duration < 0 {
		duration = 0
	}
	pomodoros := 0
	if duration >= constants.PomodoroSeconds {
		pomodoros = 1
	}

	log, err := s.taskRepo.StopTimer(ctx, repository.TimerStop{
		TaskID:        taskID,
		Identity:      identity,
		ObservedStart: *task.ActiveTimerStart,
		EndTime:       end,
		Duration:      duration,
		Pomodoros:     pomodoros,
		SessionType:   constants.SessionTypeFocus,
		Fields:        claimFields(task, identity, map[string]any{"last_worked_at": end}),
	})
	if errors.Is(err, repository.ErrTimerChanged) {
		return nil, ErrNoActiveTimer
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stop timer: %w", err)
	}

	s.log.Debug("timer stopped",
		zap.Uint64("task_id", taskID),
		zap.Int64("duration", duration),
		zap.Int("pomodoros", pomodoros),
	)
	s.publisher.Publish(ScopeOf(task))

	return &dto.TimerStoppedDTO{
		TaskID:    taskID,
		Duration:  duration,
		TotalTime: task.TotalTimeSpent + duration,
		LogID:     log.ID,
	}, nil
}

// ActiveTimers lists the visible tasks whose timer is running
func (s *TimerService) ActiveTimers(ctx context.Context, identity string) ([]models.Task, error) {
	tasks, err := s.taskRepo.ListActiveTimers(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list active timers: %w", err)
	}
	return tasks, nil
}

// TimeLogs returns one page of a visible task's session history
func (s *TimerService) TimeLogs(ctx context.Context, identity string, taskID uint64, params utils.PaginationParams) ([]models.TimeLog, int64, error) {
	if _, err := findVisibleTask(ctx, s.taskRepo, identity, taskID); err != nil {
		return nil, 0, err
	}

	logs, total, err := s.taskRepo.ListTimeLogs(ctx, taskID, params)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list time logs: %w", err)
	}
	return logs, total, nil
}
