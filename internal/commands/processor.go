// Package commands implements the operator chat commands: configuration
// mutations, device registration and the read-only status queries.
package commands

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"linkwatch/internal/monitor"
	"linkwatch/internal/notifier"
	"linkwatch/internal/storage"
	"linkwatch/internal/task/scheduler"
	"linkwatch/internal/transport/channelid"
	logx "linkwatch/pkg/logx"
)

// ValidationError rejects a command before anything is mutated. Usage is
// the reply shown to the user.
type ValidationError struct {
	Usage string
}

func (e *ValidationError) Error() string     { return "invalid command: " + e.Usage }
func (e *ValidationError) UsageText() string { return e.Usage }

// Store is the durable configuration the processor mutates.
type Store interface {
	Threshold() monitor.Threshold
	SetThreshold(ctx context.Context, t monitor.Threshold) error
	ScheduleTimes() []string
	SetSchedule(ctx context.Context, labels []string) error

	Blacklist() []string
	AddBlacklist(ctx context.Context, user string) (bool, error)
	RemoveBlacklist(ctx context.Context, user string) (bool, error)

	Targets() []notifier.Target
	AddTarget(ctx context.Context, t notifier.Target) (bool, error)
	RemoveTarget(ctx context.Context, id string) (bool, error)
	FindTarget(chatID string) (string, bool)
	LearnDevice(observedID, targetID string)

	Audit(ctx context.Context, e storage.AuditEntry)
}

// ScheduleInstaller reinstalls the report triggers.
type ScheduleInstaller interface {
	Install(labels []string) error
}

// Processor validates and applies configuration changes. In-memory state
// changes even when persisting fails; the error is returned so callers
// can tell the operator the write will be retried.
type Processor struct {
	store    Store
	schedule ScheduleInstaller
	log      logx.Logger
}

func NewProcessor(store Store, schedule ScheduleInstaller, log logx.Logger) *Processor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Processor{store: store, schedule: schedule, log: log}
}

const (
	usageThreshold = "Format: /threshold <min_menit> <max_menit>"
	usageSchedule  = "Format jam tidak valid. Gunakan HH:MM, contoh: /jadwal 07:00 15:00"
	usageRegister  = "Format: /register <nomor>\n\nContoh:\n/register 6285137387227"
	usageTargets   = "Format: /targets <add|remove|list> [id] [all|link]\n\nContoh:\n/targets add -1001234567890 all\n/targets add discord:112233445566778899 link"
	usageBlacklist = "Format: /blacklist <add|remove|list> [nama]"
	usageDetail    = "Format: /detail <down|up> <prefix>\n\nContoh:\n/detail down BRN\n/detail up PGK"
)

// ParseThreshold reads the two minute bounds of /threshold.
func ParseThreshold(args []string) (monitor.Threshold, error) {
	if len(args) != 2 {
		return monitor.Threshold{}, &ValidationError{Usage: usageThreshold}
	}
	min, err1 := strconv.ParseFloat(args[0], 64)
	max, err2 := strconv.ParseFloat(args[1], 64)
	if err1 != nil || err2 != nil {
		return monitor.Threshold{}, &ValidationError{Usage: usageThreshold}
	}
	return monitor.Threshold{MinMinutes: min, MaxMinutes: max}, nil
}

func (p *Processor) SetThreshold(ctx context.Context, t monitor.Threshold) error {
	if !t.Valid() {
		return &ValidationError{Usage: usageThreshold}
	}
	return p.store.SetThreshold(ctx, t)
}

// NormalizeSchedule parses every token ("7:00", "07.00") into HH:MM and
// drops duplicates. One bad token rejects the whole batch.
func NormalizeSchedule(tokens []string) ([]string, error) {
	out := make([]string, 0, len(tokens))
	seen := map[string]bool{}
	for _, tok := range tokens {
		tok = strings.ReplaceAll(strings.TrimSpace(tok), ".", ":")
		h, m, err := scheduler.ParseHHMM(tok)
		if err != nil {
			return nil, &ValidationError{Usage: usageSchedule}
		}
		label := fmt.Sprintf("%02d:%02d", h, m)
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	if len(out) == 0 {
		return nil, &ValidationError{Usage: usageSchedule}
	}
	return out, nil
}

// SetSchedule replaces the report times and reinstalls the triggers.
func (p *Processor) SetSchedule(ctx context.Context, tokens []string) ([]string, error) {
	labels, err := NormalizeSchedule(tokens)
	if err != nil {
		return nil, err
	}
	if err := p.schedule.Install(labels); err != nil {
		return nil, fmt.Errorf("install schedule: %w", err)
	}
	return labels, p.store.SetSchedule(ctx, labels)
}

func (p *Processor) AddBlacklist(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, &ValidationError{Usage: usageBlacklist}
	}
	return p.store.AddBlacklist(ctx, name)
}

func (p *Processor) RemoveBlacklist(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, &ValidationError{Usage: usageBlacklist}
	}
	return p.store.RemoveBlacklist(ctx, name)
}

// AddTarget subscribes id. Unknown or missing types fall back to all.
func (p *Processor) AddTarget(ctx context.Context, id, typ string) (notifier.Target, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return notifier.Target{}, false, &ValidationError{Usage: usageTargets}
	}
	t := notifier.Target{ID: id, Type: notifier.ParseSubscriptionType(typ)}
	added, err := p.store.AddTarget(ctx, t)
	return t, added, err
}

func (p *Processor) RemoveTarget(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, &ValidationError{Usage: usageTargets}
	}
	return p.store.RemoveTarget(ctx, id)
}

// ErrUnknownNumber means no target carries the registered phone number.
var ErrUnknownNumber = fmt.Errorf("commands: number is not a registered target")

// Register links deviceID to the target whose phone digits equal phone.
func (p *Processor) Register(deviceID, phone string) (string, error) {
	digits := channelid.NormalizePhone(phone)
	if digits == "" {
		return "", &ValidationError{Usage: usageRegister}
	}
	for _, t := range p.store.Targets() {
		if channelid.Phone(t.ID) == digits {
			p.store.LearnDevice(deviceID, t.ID)
			p.log.Info("device registered", logx.String("device", deviceID), logx.String("target", t.ID))
			return t.ID, nil
		}
	}
	return "", ErrUnknownNumber
}

// audit records an operator mutation.
func (p *Processor) audit(ctx context.Context, actor, chat, action, target string, err error) {
	e := storage.AuditEntry{
		At:      time.Now(),
		ActorID: actor,
		ChatID:  chat,
		Action:  action,
		Target:  target,
		OK:      err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	p.store.Audit(ctx, e)
}

func formatMinutes(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
