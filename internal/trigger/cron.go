package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/dagflow/internal/domain"
)

// cronParser — парсер cron-выражений (5 полей: минута, час, день, месяц, день недели).
// Дескрипторы вроде @hourly и @every 5m тоже поддерживаются.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// defaultStartTimeout — таймаут вызова Starter.Start из cron.
const defaultStartTimeout = 10 * time.Second

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("%w: cron expression %q: %v", ErrInvalidTrigger, expr, err)
	}
	return nil
}

// NextRun вычисляет следующее время срабатывания после from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cron expression %q: %v", ErrInvalidTrigger, expr, err)
	}
	return schedule.Next(from), nil
}

// CronScheduler запускает workflow по триггерам type: schedule.
//
// Sync перечитывает триггеры из WorkflowLister и пересоздаёт записи cron.
// OnRegister вызывает его после каждой регистрации workflow.
type CronScheduler struct {
	cron      *cron.Cron
	starter   Starter
	workflows WorkflowLister
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[cron.EntryID]string // entry → workflow ID
}

// CronConfig — конфигурация CronScheduler.
type CronConfig struct {
	Starter   Starter
	Workflows WorkflowLister

	// Location — часовой пояс расписаний (default: UTC).
	Location *time.Location

	Logger *slog.Logger
}

// NewCronScheduler создаёт CronScheduler. Расписания не запускаются до Start.
func NewCronScheduler(cfg CronConfig) *CronScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cron")

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	cl := cronLogger{logger: logger}

	return &CronScheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		starter:   cfg.Starter,
		workflows: cfg.Workflows,
		logger:    logger,
		entries:   make(map[cron.EntryID]string),
	}
}

// Sync пересоздаёт расписания по текущему набору workflow.
// Триггеры с некорректным cron-выражением пропускаются с предупреждением.
// Возвращает количество активных расписаний.
func (s *CronScheduler) Sync() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.entries {
		s.cron.Remove(id)
	}
	clear(s.entries)

	for _, def := range s.workflows.List() {
		for _, tr := range def.Triggers {
			spec := cronSpec(tr)
			if spec == "" {
				continue
			}

			workflowID := def.ID
			vars := triggerVariables(tr)

			id, err := s.cron.AddFunc(spec, func() {
				s.fire(workflowID, vars)
			})
			if err != nil {
				s.logger.Warn("skipping invalid schedule trigger",
					"workflow_id", workflowID,
					"cron", spec,
					"error", err,
				)
				continue
			}
			s.entries[id] = workflowID
		}
	}

	s.logger.Info("schedules synced", "count", len(s.entries))
	return len(s.entries)
}

// OnRegister пересинхронизирует расписания после регистрации workflow.
// Подписывается на store.DefinitionStore через Subscribe.
func (s *CronScheduler) OnRegister(def domain.WorkflowDefinition) {
	s.logger.Debug("workflow changed, resyncing schedules", "workflow_id", def.ID)
	s.Sync()
}

// Start запускает cron в фоне.
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop останавливает cron и ждёт завершения запущенных заданий.
func (s *CronScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduled возвращает ID workflow и время следующего запуска для каждого расписания.
func (s *CronScheduler) Scheduled() map[string][]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]time.Time)
	for _, entry := range s.cron.Entries() {
		if workflowID, ok := s.entries[entry.ID]; ok {
			next := entry.Next
			if next.IsZero() {
				next = entry.Schedule.Next(time.Now())
			}
			out[workflowID] = append(out[workflowID], next)
		}
	}
	return out
}

// fire запускает execution по расписанию.
func (s *CronScheduler) fire(workflowID string, vars map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultStartTimeout)
	defer cancel()

	id, err := s.starter.Start(ctx, workflowID, vars)
	if err != nil {
		s.logger.Error("scheduled start failed", "workflow_id", workflowID, "error", err)
		return
	}

	s.logger.Info("workflow started by schedule",
		"workflow_id", workflowID,
		"execution_id", id,
	)
}

// cronLogger адаптирует slog к cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
