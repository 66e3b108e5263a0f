package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sagaflow/activities"
	"sagaflow/engine"
	"sagaflow/eventbus"
	"sagaflow/httpapi"
	"sagaflow/persistence"
)

// deps bundles the reference host's collaborators: one Postgres-backed
// repository, one HTTP account provisioner, one event bus. The serve
// subcommand builds it; run-demo assembles its own saga without it.
type deps struct {
	logger           *slog.Logger
	users            *persistence.UserRepository
	provisioner      *activities.AccountProvisioner
	bus              eventbus.Publisher
	idempotency      *activities.InMemoryIdempotencyChecker
	observer         *activities.LoggingObserver
	metrics          engine.MetricsCollector
	engineConfig     *engine.EngineConfig
	skipCompensation bool
	asyncPoolSize    int
}

// runUserCreationSaga builds and executes the saga for one request: persist
// the user, provision a downstream account, publish an audit event. Unless
// compensation is disabled, a failure compensates already-completed steps
// in reverse order.
func (d *deps) runUserCreationSaga(req httpapi.CreateUserRequest) (any, error) {
	opts := []engine.EngineOption{
		engine.WithLogger(d.logger),
		engine.WithIdempotencyChecker(d.idempotency),
		engine.WithInterceptor(d.observer),
		engine.WithListener(d.observer),
	}
	if d.metrics != nil {
		opts = append(opts, engine.WithMetricsCollector(d.metrics))
	}
	if d.asyncPoolSize > 0 {
		opts = append(opts, engine.WithExecutor(engine.NewDefaultPool(d.asyncPoolSize)))
	}
	if d.engineConfig != nil {
		opts = append(opts, d.engineConfig.Options()...)
	}
	if d.skipCompensation {
		opts = append(opts, engine.WithSkipCompensation())
	}

	wf := engine.New("user-creation", opts...)

	user := persistence.User{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: time.Now(),
	}

	var provisioned activities.ProvisionResult

	err := wf.StepWithCompensation("persist-user",
		func() (any, error) {
			return d.users.Insert(context.Background(), user)
		},
		func(any) error {
			return d.users.Delete(context.Background(), user.ID)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("sagaflow: build persist-user step: %w", err)
	}

	err = wf.StepWithCompensation("provision-account",
		func() (any, error) {
			res, err := d.provisioner.Provision(activities.ProvisionRequest{
				UserID: user.ID,
				Email:  user.Email,
			})
			provisioned = res
			return res, err
		},
		func(any) error {
			return d.provisioner.Deprovision(provisioned.AccountID)
		},
		engine.WithRetries(2),
	)
	if err != nil {
		return nil, fmt.Errorf("sagaflow: build provision-account step: %w", err)
	}

	err = wf.AsyncStepFunc("publish-audit-event",
		func(ctx context.Context, wfCtx *engine.Context) (any, error) {
			event := eventbus.NewAuditEventBuilder().
				Set("user.id", user.ID).
				Set("user.email", user.Email).
				Set("account.id", provisioned.AccountID).
				Build("user.created")
			if err := d.bus.Publish(ctx, event); err != nil {
				return nil, err
			}
			return event.Topic, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("sagaflow: build publish-audit-event step: %w", err)
	}

	return wf.Execute(context.Background())
}
