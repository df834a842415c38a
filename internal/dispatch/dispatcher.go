package dispatch

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/grader-go-api/internal/observability"
)

// Processor evaluates one submission end to end. Failures must be recorded
// against the submission itself; the dispatcher only logs them.
type Processor interface {
	Process(ctx context.Context, submissionID uint) error
}

// Task is one queued unit of work.
type Task struct {
	ExerciseID   uint
	SubmissionID uint
}

// Dispatcher schedules submissions onto a fixed worker pool. Each exercise
// gets its own FIFO queue and exercises are drained round-robin, so a
// backlog in one exercise cannot starve the others. The queue is unbounded:
// saturation means waiting, never dropping.
type Dispatcher struct {
	workers   int
	processor Processor
	logger    zerolog.Logger

	mu     sync.Mutex
	queues map[uint][]uint
	ring   []uint
	next   int
	depth  int

	notify chan struct{}
	wg     sync.WaitGroup
}

// New constructs a dispatcher with the given pool size.
func New(workers int, processor Processor, logger zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}

	return &Dispatcher{
		workers:   workers,
		processor: processor,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		queues:    make(map[uint][]uint),
		notify:    make(chan struct{}, workers),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Enqueue appends a submission to its exercise queue.
func (d *Dispatcher) Enqueue(task Task) {
	d.mu.Lock()
	if _, ok := d.queues[task.ExerciseID]; !ok {
		d.ring = append(d.ring, task.ExerciseID)
	}
	d.queues[task.ExerciseID] = append(d.queues[task.ExerciseID], task.SubmissionID)
	d.depth++
	d.mu.Unlock()

	observability.QueueDepth().WithLabelValues(exerciseLabel(task.ExerciseID)).Inc()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Depth reports the number of queued submissions not yet picked up.
func (d *Dispatcher) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.depth
}

// pop removes the next submission in round-robin exercise order.
func (d *Dispatcher) pop() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for range d.ring {
		if d.next >= len(d.ring) {
			d.next = 0
		}
		exerciseID := d.ring[d.next]
		queue := d.queues[exerciseID]
		if len(queue) == 0 {
			d.next++
			continue
		}

		d.queues[exerciseID] = queue[1:]
		d.depth--
		d.next++
		return Task{ExerciseID: exerciseID, SubmissionID: queue[0]}, true
	}

	return Task{}, false
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	logger := d.logger.With().Int("worker", id).Logger()
	for {
		task, ok := d.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-d.notify:
				continue
			}
		}

		observability.QueueDepth().WithLabelValues(exerciseLabel(task.ExerciseID)).Dec()
		d.run(ctx, logger, task)

		if ctx.Err() != nil {
			return
		}
	}
}

// run isolates one submission's evaluation; a panic or error stays with
// that submission and the worker keeps going.
func (d *Dispatcher) run(ctx context.Context, logger zerolog.Logger, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Uint("submission_id", task.SubmissionID).
				Msg("submission evaluation panicked")
		}
	}()

	if err := d.processor.Process(ctx, task.SubmissionID); err != nil {
		logger.Error().
			Err(err).
			Uint("submission_id", task.SubmissionID).
			Msg("submission evaluation failed")
	}
}

func exerciseLabel(exerciseID uint) string {
	return strconv.FormatUint(uint64(exerciseID), 10)
}
