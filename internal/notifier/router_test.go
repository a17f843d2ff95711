package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "linkwatch/pkg/logx"
)

type sentMsg struct {
	to   string
	text string
	at   time.Time
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
	fail map[string]error
}

func (f *fakeSender) SendText(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[channelID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMsg{to: channelID, text: text, at: time.Now()})
	return nil
}

func (f *fakeSender) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.to)
	}
	return out
}

type staticTargets []Target

func (s staticTargets) Targets() []Target { return s }

type learned map[string]string

func (l learned) Learn(sendID, targetID string) { l[sendID] = targetID }

func TestEligibilityTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  SubscriptionType
		cat  Category
		want bool
	}{
		{All, Individual, true},
		{All, Grouped, true},
		{All, Report, true},
		{Link, Individual, false},
		{Link, Grouped, true},
		{Link, Report, false},
	}
	for _, tt := range tests {
		if got := tt.typ.Eligible(tt.cat); got != tt.want {
			t.Fatalf("%s.Eligible(%s)=%v want %v", tt.typ, tt.cat, got, tt.want)
		}
	}
	if ParseSubscriptionType("LINK") != Link || ParseSubscriptionType("bogus") != All || ParseSubscriptionType("") != All {
		t.Fatalf("ParseSubscriptionType defaults wrong")
	}
}

func TestDispatchRoutesByCategory(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{}
	targets := staticTargets{{ID: "A", Type: All}, {ID: "L", Type: Link}}
	r := New(Config{SendGap: time.Millisecond}, snd, targets, logx.Nop(), nil, nil)

	ctx := context.Background()
	r.Dispatch(ctx, Individual, "ind")
	r.Dispatch(ctx, Grouped, "grp")
	r.Dispatch(ctx, Report, "rep")

	snd.mu.Lock()
	defer snd.mu.Unlock()
	got := map[string][]string{}
	for _, m := range snd.sent {
		got[m.text] = append(got[m.text], m.to)
	}
	if len(got["ind"]) != 1 || got["ind"][0] != "A" {
		t.Fatalf("individual went to %v", got["ind"])
	}
	if len(got["grp"]) != 2 {
		t.Fatalf("grouped went to %v", got["grp"])
	}
	if len(got["rep"]) != 1 || got["rep"][0] != "A" {
		t.Fatalf("report went to %v", got["rep"])
	}
}

func TestDispatchSkipsFailingTarget(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{fail: map[string]error{"B": errors.New("blocked")}}
	targets := staticTargets{{ID: "A", Type: All}, {ID: "B", Type: All}, {ID: "C", Type: All}}
	r := New(Config{SendGap: time.Millisecond}, snd, targets, logx.Nop(), nil, nil)

	res := r.Dispatch(context.Background(), Individual, "x")
	if len(res.Sent) != 2 || len(res.Failed) != 1 || res.Failed[0].TargetID != "B" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := snd.recipients(); len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("recipients=%v", got)
	}
}

func TestSendGapHoldsAcrossDispatchCalls(t *testing.T) {
	t.Parallel()

	const gap = 60 * time.Millisecond
	snd := &fakeSender{}
	r := New(Config{SendGap: gap}, snd, staticTargets{{ID: "A", Type: All}}, logx.Nop(), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Dispatch(context.Background(), Report, "r")
		}()
	}
	wg.Wait()

	snd.mu.Lock()
	defer snd.mu.Unlock()
	if len(snd.sent) != 3 {
		t.Fatalf("sent=%d", len(snd.sent))
	}
	for i := 1; i < len(snd.sent); i++ {
		if d := snd.sent[i].at.Sub(snd.sent[i-1].at); d < gap-5*time.Millisecond {
			t.Fatalf("sends %d and %d only %v apart", i-1, i, d)
		}
	}
}

func TestDispatchLearnsNormalizedSendID(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{}
	l := learned{}
	r := New(Config{SendGap: time.Millisecond}, snd, staticTargets{{ID: "6287715308060@c.us", Type: All}}, logx.Nop(), nil, nil)
	r.SetLearner(l)

	r.Dispatch(context.Background(), Individual, "x")
	if l["6287715308060@s.whatsapp.net"] != "6287715308060@c.us" {
		t.Fatalf("mapping not learned: %v", l)
	}
	if got := snd.recipients(); got[0] != "6287715308060@s.whatsapp.net" {
		t.Fatalf("send id not normalized: %v", got)
	}
}

func TestDispatchWithoutTargets(t *testing.T) {
	t.Parallel()

	r := New(Config{}, &fakeSender{}, staticTargets{{ID: "L", Type: Link}}, logx.Nop(), nil, nil)
	res := r.Dispatch(context.Background(), Individual, "x")
	if res.Eligible != 0 || len(res.Sent) != 0 {
		t.Fatalf("unexpected: %+v", res)
	}
	if !errors.Is(res.Err, ErrNoTargets) || res.Interrupted() {
		t.Fatalf("err=%v interrupted=%v", res.Err, res.Interrupted())
	}
	if len(r.History()) != 0 {
		t.Fatalf("nothing should be recorded")
	}
}

type countingSender struct {
	mu       sync.Mutex
	attempts map[string]int
	err      error
	onSend   func()
}

func (c *countingSender) SendText(_ context.Context, to, _ string) error {
	c.mu.Lock()
	if c.attempts == nil {
		c.attempts = map[string]int{}
	}
	c.attempts[to]++
	c.mu.Unlock()
	if c.onSend != nil {
		c.onSend()
	}
	return c.err
}

func TestFailedTargetIsTriedOnce(t *testing.T) {
	t.Parallel()

	snd := &countingSender{err: errors.New("flood wait")}
	r := New(Config{SendGap: time.Millisecond}, snd, staticTargets{{ID: "A", Type: All}}, logx.Nop(), nil, nil)

	res := r.Dispatch(context.Background(), Individual, "x")
	if len(res.Failed) != 1 || res.Err != nil {
		t.Fatalf("unexpected: %+v", res)
	}
	if snd.attempts["A"] != 1 {
		t.Fatalf("attempts=%d, want 1", snd.attempts["A"])
	}
}

func TestDispatchReportsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snd := &countingSender{onSend: cancel}
	targets := staticTargets{{ID: "A", Type: All}, {ID: "B", Type: All}, {ID: "C", Type: All}}
	r := New(Config{SendGap: time.Millisecond}, snd, targets, logx.Nop(), nil, nil)

	res := r.Dispatch(ctx, Individual, "x")
	if !res.Interrupted() || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("err=%v", res.Err)
	}
	if len(res.Sent) != 1 || res.Sent[0] != "A" {
		t.Fatalf("sent=%v", res.Sent)
	}
	if snd.attempts["B"] != 0 || snd.attempts["C"] != 0 {
		t.Fatalf("attempts after cancel: %v", snd.attempts)
	}
}
