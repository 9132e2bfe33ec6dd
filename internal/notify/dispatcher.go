package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"skillhub/pkg/interfaces"
	"skillhub/pkg/types"
)

// delivery is one queued push/email dispatch for an external collaborator.
type delivery struct {
	channel      string
	notification *types.Notification
}

// Dispatcher drains external-channel deliveries off the broadcast path.
// A bounded queue feeds a small errgroup worker pool; every delivery runs
// under its own timeout so a slow collaborator can never stall the hub.
type Dispatcher struct {
	jobs     chan delivery
	shutdown chan struct{}
	push     interfaces.PushDeliverer
	email    interfaces.EmailDeliverer
	users    interfaces.UserDirectory
	timeout  time.Duration
	workers  int

	group   *errgroup.Group
	running bool
	mu      sync.Mutex
}

// NewDispatcher creates a stopped dispatcher.
func NewDispatcher(push interfaces.PushDeliverer, email interfaces.EmailDeliverer, users interfaces.UserDirectory, queueSize, workers int, timeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		jobs:     make(chan delivery, queueSize),
		shutdown: make(chan struct{}),
		push:     push,
		email:    email,
		users:    users,
		timeout:  timeout,
		workers:  workers,
	}
}

// Start launches the worker pool. A stopped dispatcher may be started
// again; each start gets a fresh shutdown signal.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.shutdown = make(chan struct{})

	g, ctx := errgroup.WithContext(ctx)
	d.group = g
	stop := d.shutdown
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.run(ctx, stop)
			return nil
		})
	}
	log.Printf("notify: dispatcher started with %d workers", d.workers)
}

// Stop signals the workers and waits for in-flight deliveries to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.shutdown)
	group := d.group
	d.mu.Unlock()

	if group != nil {
		_ = group.Wait()
	}
	log.Println("notify: dispatcher stopped")
}

// Enqueue queues a delivery without blocking. Best-effort once the record
// is durable: a full queue drops the delivery and reports it.
func (d *Dispatcher) Enqueue(channel string, n *types.Notification) error {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running {
		return ErrDispatcherNotRunning
	}

	select {
	case d.jobs <- delivery{channel: channel, notification: n}:
		return nil
	default:
		return ErrDispatchQueueFull
	}
}

func (d *Dispatcher) run(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case job := <-d.jobs:
			d.deliver(job)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// deliver invokes the external collaborator under a bounded timeout.
// Failures are logged and the durable record is left untouched; retry
// policy lives in the collaborator, not here.
func (d *Dispatcher) deliver(job delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	user, err := d.users.LookupUser(ctx, job.notification.RecipientID)
	if err != nil {
		log.Printf("notify: dropping %s delivery for unknown user %s: %v", job.channel, job.notification.RecipientID, err)
		return
	}

	payload := map[string]interface{}{
		"notification_id": job.notification.ID,
		"type":            job.notification.Type,
		"title":           job.notification.Title,
		"message":         job.notification.Message,
		"data":            job.notification.Data,
		"priority":        job.notification.Priority,
	}

	switch job.channel {
	case types.ChannelPush:
		err = d.push.DeliverPush(ctx, user, payload)
	case types.ChannelEmail:
		err = d.email.DeliverEmail(ctx, user, payload)
	default:
		log.Printf("notify: unknown dispatch channel %q for notification %s", job.channel, job.notification.ID)
		return
	}

	if err != nil {
		log.Printf("notify: %s delivery failed for notification %s: %v", job.channel, job.notification.ID, err)
	}
}
