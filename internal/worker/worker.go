// Package worker registers the orchestration workflow and its activities
// on a Temporal task queue.
package worker

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/insightgrid-ai/orchestrator/internal/activities"
	"github.com/insightgrid-ai/orchestrator/internal/workflows"
)

// Options configures the Temporal connection.
type Options struct {
	HostPort  string
	Namespace string
	TaskQueue string
}

// Worker wraps a Temporal worker and its client.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *zap.Logger
}

// New connects to Temporal and registers the workflow and activities.
func New(opts Options, acts *activities.Activities, logger *zap.Logger) (*Worker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := client.Dial(client.Options{
		HostPort:  opts.HostPort,
		Namespace: opts.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to temporal %s: %w", opts.HostPort, err)
	}

	w := worker.New(c, opts.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.OrchestrationWorkflow)
	w.RegisterActivity(acts.PlanQuery)
	w.RegisterActivity(acts.ExecuteAgent)
	w.RegisterActivity(acts.EvaluateResponse)
	w.RegisterActivity(acts.PersistRun)

	logger.Info("Temporal worker registered",
		zap.String("host_port", opts.HostPort),
		zap.String("task_queue", opts.TaskQueue))
	return &Worker{client: c, worker: w, logger: logger}, nil
}

// Run blocks until interrupted or Stop is called.
func (w *Worker) Run() error {
	return w.worker.Run(worker.InterruptCh())
}

// Stop shuts the worker down and closes the client.
func (w *Worker) Stop() {
	w.worker.Stop()
	w.client.Close()
}
