package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"servisca-quickmatch/internal/log"
)

type (
	// TopicSetter receives task:<id> once a creation request succeeds
	TopicSetter interface {
		SetTopic(topic string) error
	}

	// Initiator issues creation requests from form activations. A newer
	// activation cancels the one still in flight, so the latest always wins
	Initiator struct {
		client *Client
		target TopicSetter
		logger *slog.Logger

		topicMu sync.Mutex

		mu     sync.Mutex
		seq    uint64
		cancel context.CancelFunc
		last   Attempt
	}

	// Attempt is the outcome of the most recent activation
	Attempt struct {
		Seq     uint64
		Pending bool
		TaskID  string
		Err     error
		At      time.Time
	}
)

var ErrSuperseded = errors.New("superseded by a newer request")

func NewInitiator(client *Client, target TopicSetter, logger *slog.Logger) *Initiator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Initiator{
		client: client,
		target: target,
		logger: logger,
	}
}

// Start runs one activation in the background. The channel yields the
// Attempt once it settles, including ErrSuperseded when a later Start won
func (in *Initiator) Start(ctx context.Context, form Form) <-chan Attempt {
	out := make(chan Attempt, 1)

	in.mu.Lock()
	if in.cancel != nil {
		in.cancel()
	}
	in.seq++
	seq := in.seq
	reqCtx, cancel := context.WithCancel(ctx)
	in.cancel = cancel
	in.last = Attempt{Seq: seq, Pending: true, At: time.Now()}
	in.mu.Unlock()

	go func() {
		out <- in.run(reqCtx, cancel, seq, form)
	}()
	return out
}

// Last returns the latest activation's state
func (in *Initiator) Last() Attempt {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.last
}

func (in *Initiator) run(
	ctx context.Context, cancel context.CancelFunc, seq uint64, form Form,
) Attempt {
	defer cancel()

	var taskID string
	req, err := form.Request()
	if err == nil {
		var resp *CreateResponse
		resp, err = in.client.Create(ctx, req)
		if err == nil {
			taskID = resp.TaskID
		}
	}

	in.mu.Lock()
	if seq != in.seq {
		in.mu.Unlock()
		in.logger.Debug("dropping superseded task response", slog.Uint64("seq", seq))
		return Attempt{Seq: seq, Err: ErrSuperseded, At: time.Now()}
	}
	in.cancel = nil
	res := Attempt{Seq: seq, TaskID: taskID, Err: err, At: time.Now()}
	in.last = res
	in.mu.Unlock()

	if err != nil {
		in.logger.Debug("task creation failed", log.Error(err))
		return res
	}
	in.logger.Info("task created", log.TaskID(taskID))

	// SetTopic can block on a closing connection and must not hold mu.
	// topicMu orders topic changes by activation
	in.topicMu.Lock()
	defer in.topicMu.Unlock()
	if !in.current(seq) {
		in.logger.Debug("skipping superseded task topic", log.TaskID(taskID))
		return Attempt{Seq: seq, TaskID: taskID, Err: ErrSuperseded, At: time.Now()}
	}
	if err := in.target.SetTopic(TaskTopic(taskID)); err != nil {
		in.logger.Warn("task subscription failed", log.TaskID(taskID), log.Error(err))
		res.Err = err
		in.mu.Lock()
		if in.seq == seq {
			in.last = res
		}
		in.mu.Unlock()
	}
	return res
}

func (in *Initiator) current(seq uint64) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.seq == seq
}
