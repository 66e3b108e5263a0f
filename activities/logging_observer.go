package activities

import (
	"log/slog"

	"sagaflow/engine"
)

// LoggingObserver is a ready StepInterceptor/WorkflowListener pair that logs
// every workflow and step lifecycle event through a structured *slog.Logger.
type LoggingObserver struct {
	logger *slog.Logger
}

// NewLoggingObserver wraps logger, falling back to slog.Default() if nil.
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger}
}

var (
	_ engine.StepInterceptor  = (*LoggingObserver)(nil)
	_ engine.WorkflowListener = (*LoggingObserver)(nil)
)

func (o *LoggingObserver) BeforeStep(step engine.Step) {
	o.logger.Info("step starting", "step", step.Name(), "id", step.ID())
}

func (o *LoggingObserver) AfterStep(step engine.Step, result any) {
	o.logger.Info("step finished", "step", step.Name(), "id", step.ID(), "result", result)
}

func (o *LoggingObserver) OnStepError(step engine.Step, err error) {
	o.logger.Error("step failed", "step", step.Name(), "id", step.ID(), "error", err)
}

func (o *LoggingObserver) OnWorkflowStart(workflowName string) {
	o.logger.Info("workflow starting", "workflow", workflowName)
}

func (o *LoggingObserver) OnWorkflowComplete(workflowName string, result any) {
	o.logger.Info("workflow completed", "workflow", workflowName, "result", result)
}

func (o *LoggingObserver) OnWorkflowError(workflowName string, err error) {
	o.logger.Error("workflow failed", "workflow", workflowName, "error", err)
}

func (o *LoggingObserver) OnCompensationStart(count int) {
	o.logger.Warn("compensation starting", "steps", count)
}

func (o *LoggingObserver) OnCompensationComplete(succeeded, failed int) {
	o.logger.Warn("compensation finished", "succeeded", succeeded, "failed", failed)
}
