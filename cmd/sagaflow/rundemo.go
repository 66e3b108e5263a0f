package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sagaflow/activities"
	"sagaflow/engine"
	"sagaflow/engine/exprpredicate"
	"sagaflow/eventbus"
)

var runDemoCmd = &cobra.Command{
	Use:   "run-demo",
	Short: "run the user-creation saga against in-memory collaborators and print the trace",
	RunE:  runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	observer := activities.NewLoggingObserver(logger)
	bus := eventbus.NewInMemoryBus()
	evaluator := exprpredicate.New()

	wf := engine.New("user-creation-demo",
		engine.WithLogger(logger),
		engine.WithInterceptor(observer),
		engine.WithListener(observer),
	)

	userID := uuid.NewString()
	wf.Context().Put("user.id", userID)
	wf.Context().Put("user.email", "demo@example.com")
	wf.Context().Put("retries_remaining", 2)

	if err := wf.StepWithCompensation("persist-user",
		func() (any, error) {
			return map[string]any{"id": userID}, nil
		},
		func(any) error {
			logger.Warn("compensating persist-user", "id", userID)
			return nil
		},
	); err != nil {
		return err
	}

	attempt := 0
	if err := wf.StepWithCompensation("provision-account",
		func() (any, error) {
			attempt++
			if attempt < 2 {
				return nil, errors.New("downstream temporarily unavailable")
			}
			return map[string]any{"account_id": "acct-" + userID[:8]}, nil
		},
		func(any) error {
			logger.Warn("compensating provision-account", "user", userID)
			return nil
		},
		engine.WithRetries(3),
		engine.WithRetryDelay(10*time.Millisecond),
	); err != nil {
		return err
	}

	if err := wf.WhenExpr(evaluator, `retries_remaining > 0`, func(sub *engine.Engine) error {
		return sub.StepFunc("log-retry-budget", func() (any, error) {
			return "retry budget available", nil
		})
	}); err != nil {
		return err
	}

	if err := wf.AsyncStepFunc("publish-audit-event",
		func(ctx context.Context, wfCtx *engine.Context) (any, error) {
			event := eventbus.NewAuditEventBuilder().
				Set("user.id", userID).
				Set("event.kind", "user.created").
				Build("user.created")
			if err := bus.Publish(ctx, event); err != nil {
				return nil, err
			}
			return event.Topic, nil
		},
	); err != nil {
		return err
	}

	result, err := wf.Execute(context.Background())
	if err != nil {
		return fmt.Errorf("demo saga failed: %w", err)
	}

	fmt.Printf("saga completed: final_result=%v\n", result)
	fmt.Printf("executed steps: %v\n", wf.GetExecutedStepNames())
	fmt.Printf("published events on topic %q: %d\n", "user.created", len(bus.Events("user.created")))
	return nil
}
