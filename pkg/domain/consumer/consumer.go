// Package consumer applies run-status events from the message queue
// to the store.
//
// Delivery is at-least-once and acknowledged on receipt. Correctness
// under redelivery and reordering comes from the absorbing terminal
// statuses and the idempotent progress merge, not from broker
// guarantees. A failing message is logged and dropped; the loop is
// never allowed to die on one event.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/skein-run/skein/pkg/domain"
	"github.com/skein-run/skein/pkg/domain/cluster"
	jobdb "github.com/skein-run/skein/pkg/domain/job/db"
	rundb "github.com/skein-run/skein/pkg/domain/run/db"
	runk8s "github.com/skein-run/skein/pkg/domain/run/k8s"
	kubeapierr "k8s.io/apimachinery/pkg/api/errors"
)

// logFetchTimeout bounds the best-effort engine and scheduler log
// fetch during finalization. Expiry degrades to a placeholder note.
const logFetchTimeout = 30 * time.Second

// Fingerprinter hashes a finished job's inputs and workspace for the
// result cache. The algorithm is the collaborator's concern; the
// consumer only decides when to call it and what to store.
type Fingerprinter interface {
	Parameters(jobSpec string, workflowJSON string) (string, error)
	Workspace(path string) (string, error)
}

type Consumer struct {
	logger   *log.Logger
	runs     rundb.Interface
	jobs     jobdb.Interface
	batch    runk8s.Interface
	clusters cluster.Interface
	fp       Fingerprinter

	// Terminal statuses whose arrival deletes the backing batch job.
	cleanupOn map[domain.RunStatus]bool
}

// New builds the consumer. clusters may be nil when no secondary
// compute is configured; cleanupOn is the subset of terminal statuses
// after which the batch job is deleted (nil means all of them).
func New(
	logger *log.Logger,
	runs rundb.Interface,
	jobs jobdb.Interface,
	batch runk8s.Interface,
	clusters cluster.Interface,
	fp Fingerprinter,
	cleanupOn []domain.RunStatus,
) *Consumer {
	if cleanupOn == nil {
		cleanupOn = domain.TerminalStatuses()
	}
	policy := map[domain.RunStatus]bool{}
	for _, s := range cleanupOn {
		policy[s] = true
	}
	return &Consumer{
		logger: logger, runs: runs, jobs: jobs,
		batch: batch, clusters: clusters, fp: fp, cleanupOn: policy,
	}
}

// Run drains deliveries until the channel closes or ctx is cancelled.
// Each message is acknowledged before processing.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("the status queue channel is closed")
			}
			if err := d.Ack(false); err != nil {
				c.logger.Printf("acknowledging status event: %s", err)
			}
			c.HandleMessage(ctx, d.Body)
		}
	}
}

// HandleMessage applies one status event. It never fails the caller;
// per-message failures are logged and the event is dropped.
func (c *Consumer) HandleMessage(ctx context.Context, body []byte) {
	if err := c.process(ctx, body); err != nil {
		c.logger.Printf("discarding status event: %s", err)
	}
}

func (c *Consumer) process(ctx context.Context, body []byte) error {
	var ev domain.StatusEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("malformed event body: %w", err)
	}
	if ev.RunId == "" {
		return errors.New("event names no run")
	}
	next, err := domain.AsRunStatus(ev.Status)
	if err != nil {
		return err
	}

	r, err := c.runs.Get(ctx, ev.RunId)
	if err != nil {
		// The run may not exist yet (create still in flight) or may
		// be someone else's id. Either way: drop.
		return fmt.Errorf("run %s: %w", ev.RunId, err)
	}
	if !r.Status.Alive() {
		return fmt.Errorf(
			"run %s is already %s; late event reporting %s dropped", r.Id, r.Status, next,
		)
	}

	logs := ev.Logs
	if next.Terminal() {
		logs += c.finalLogs(ctx, r)
	}

	var progress *domain.Progress
	if ev.Message != nil {
		progress = ev.Message.Progress
	}

	if _, err := c.runs.ApplyTransition(ctx, r.Id, next, logs, progress); err != nil {
		return fmt.Errorf("run %s: applying %s: %w", r.Id, next, err)
	}

	if ev.Message != nil && ev.Message.CachingInfo != nil {
		if err := c.storeCache(ctx, *ev.Message.CachingInfo); err != nil {
			c.logger.Printf("run %s: caching job result: %s", r.Id, err)
		}
	}

	if next.Terminal() && c.cleanupOn[next] {
		if err := c.batch.RemoveBatch(ctx, r.Id); err != nil && !kubeapierr.IsNotFound(err) {
			c.logger.Printf("run %s: removing batch job: %s", r.Id, err)
		}
	}
	return nil
}

// finalLogs collects the engine's own output, and the compute
// cluster's when the run has one. Best-effort with a timeout; a fetch
// failure yields a placeholder note instead of blocking the
// transition.
func (c *Consumer) finalLogs(ctx context.Context, r domain.Run) string {
	ctx, cancel := context.WithTimeout(ctx, logFetchTimeout)
	defer cancel()

	text := "\n" + c.fetch(
		ctx, "workflow engine",
		func(ctx context.Context) (io.ReadCloser, error) { return c.batch.EngineLog(ctx, r.Id) },
	)
	if r.Spec.WantsCluster() && c.clusters != nil {
		text += "\n" + c.fetch(
			ctx, "compute cluster scheduler",
			func(ctx context.Context) (io.ReadCloser, error) { return c.clusters.SchedulerLog(ctx, r.Id) },
		)
	}
	return text
}

func (c *Consumer) fetch(ctx context.Context, what string, open func(context.Context) (io.ReadCloser, error)) string {
	stream, err := open(ctx)
	if err != nil {
		return fmt.Sprintf("%s logs are unavailable: %s\n", what, err)
	}
	defer stream.Close()

	buf, err := io.ReadAll(stream)
	if err != nil {
		return fmt.Sprintf("%s logs are unavailable: %s\n", what, err)
	}
	return string(buf)
}

// storeCache records the finished job's fingerprints. A job with no
// cache row was not cache-eligible; that is not an error.
func (c *Consumer) storeCache(ctx context.Context, info domain.CachingInfo) error {
	cache, err := c.jobs.GetCache(ctx, info.JobId)
	if err != nil {
		if errors.Is(err, domain.ErrMissing) {
			return nil
		}
		return err
	}

	params, err := c.fp.Parameters(info.JobSpec, info.WorkflowJSON)
	if err != nil {
		return err
	}
	workspace, err := c.fp.Workspace(info.WorkflowWorkspace)
	if err != nil {
		return err
	}

	cache.ParametersFingerprint = params
	cache.WorkspaceFingerprint = workspace
	cache.ResultPath = info.ResultPath
	return c.jobs.StoreCache(ctx, cache)
}
