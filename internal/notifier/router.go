package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"linkwatch/internal/eventbus"
	"linkwatch/internal/metrics"
	"linkwatch/internal/transport"
	"linkwatch/internal/transport/channelid"
	logx "linkwatch/pkg/logx"
)

// TargetSource returns the current subscription list.
type TargetSource interface {
	Targets() []Target
}

// DeviceLearner records that sendID reaches targetID.
type DeviceLearner interface {
	Learn(sendID, targetID string)
}

// Router fans a message out to eligible targets, one send at a time.
//
// It is safe for concurrent use. Concurrent Dispatch calls are serialized so
// the configured gap separates every pair of consecutive sends.
type Router struct {
	sendMu sync.Mutex

	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter
	learner DeviceLearner

	sender  transport.Sender
	targets TargetSource
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender transport.Sender, targets TargetSource, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{sender: sender, targets: targets, log: log, bus: bus, metrics: m}
	r.Apply(cfg)
	return r
}

func (r *Router) SetLearner(l DeviceLearner) {
	r.mu.Lock()
	r.learner = l
	r.mu.Unlock()
}

func (r *Router) Apply(cfg Config) {
	if cfg.SendGap <= 0 {
		cfg.SendGap = DefaultSendGap
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limiter == nil || r.cfg.SendGap != cfg.SendGap {
		// burst 1: the first send goes out immediately, every next one waits a full gap.
		r.limiter = rate.NewLimiter(rate.Every(cfg.SendGap), 1)
	}
	r.cfg = cfg
}

// Eligible returns the targets that receive category c.
func (r *Router) Eligible(c Category) []Target {
	if r.targets == nil {
		return nil
	}
	var out []Target
	for _, t := range r.targets.Targets() {
		if t.Type.Eligible(c) {
			out = append(out, t)
		}
	}
	return out
}

// Dispatch sends text to every target eligible for c. Per-target failures
// are reported in the result and do not stop the fan-out.
func (r *Router) Dispatch(ctx context.Context, c Category, text string) DispatchResult {
	res := DispatchResult{Category: c}
	targets := r.Eligible(c)
	res.Eligible = len(targets)
	if len(targets) == 0 {
		r.log.Warn("no eligible targets; message not delivered", logx.String("category", string(c)))
		res.Err = ErrNoTargets
		return res
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.RLock()
	cfg := r.cfg
	lim := r.limiter
	learner := r.learner
	r.mu.RUnlock()

	for _, t := range targets {
		sendID := channelid.ToSendID(t.ID)
		err := r.sendOne(ctx, lim, cfg, sendID, text)
		r.metrics.Send(string(c), err)
		if err != nil {
			if ctx.Err() != nil {
				res.Failed = append(res.Failed, Failure{TargetID: t.ID, Err: ctx.Err()})
				res.Err = ctx.Err()
				r.log.Warn("dispatch interrupted", logx.String("category", string(c)), logx.Err(ctx.Err()))
				return res
			}
			res.Failed = append(res.Failed, Failure{TargetID: t.ID, Err: err})
			r.log.Warn("send failed; skipping target", logx.String("category", string(c)), logx.String("target", t.ID), logx.Err(err))
			r.publish(eventbus.NotifyFailed, c, t.ID, err)
			continue
		}
		res.Sent = append(res.Sent, t.ID)
		if sendID != t.ID && learner != nil {
			learner.Learn(sendID, t.ID)
		}
		r.publish(eventbus.NotifySent, c, t.ID, nil)
	}

	r.appendHistory(cfg.HistorySize, HistoryItem{At: time.Now(), Category: c, Text: text, Sent: len(res.Sent)})
	r.log.Debug("dispatched", logx.String("category", string(c)), logx.Int("sent", len(res.Sent)), logx.Int("failed", len(res.Failed)))
	return res
}

// sendOne makes a single attempt; a failed target waits for the next message.
func (r *Router) sendOne(ctx context.Context, lim *rate.Limiter, cfg Config, sendID, text string) error {
	if r.sender == nil {
		return errors.New("notifier: no sender")
	}
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	return r.sender.SendText(callCtx, sendID, text)
}

func (r *Router) publish(typ string, c Category, targetID string, err error) {
	if r.bus == nil {
		return
	}
	now := time.Now()
	ev := NotificationEvent{Category: c, TargetID: targetID, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	r.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

// History returns recently dispatched messages, oldest first.
func (r *Router) History() []HistoryItem {
	r.hmu.Lock()
	defer r.hmu.Unlock()
	return append([]HistoryItem(nil), r.history...)
}

func (r *Router) appendHistory(limit int, it HistoryItem) {
	r.hmu.Lock()
	r.history = append(r.history, it)
	if len(r.history) > limit {
		r.history = r.history[len(r.history)-limit:]
	}
	r.hmu.Unlock()
}
