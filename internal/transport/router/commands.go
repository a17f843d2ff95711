package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"linkwatch/internal/runtime/supervisor"
	"linkwatch/internal/transport"
	logx "linkwatch/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessMember admits admins and members of a notification target.
	AccessMember
	AccessAdmin
)

func (a Access) String() string {
	switch a {
	case AccessMember:
		return "member"
	case AccessAdmin:
		return "admin"
	default:
		return "everyone"
	}
}

// Authorizer answers access questions for a chat or sender id.
type Authorizer interface {
	IsAdmin(id string) bool
	IsMember(id string) bool
}

type Command struct {
	// Route is a space-separated command path, e.g.:
	//   "targets"
	//   "targets add"
	Route       string
	Aliases     []string // root-level aliases, e.g. ["help"]
	Description string
	Usage       string
	Access      Access

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type Request struct {
	Message  *transport.Message
	ChatID   string
	SenderID string
	Path     []string // matched command path tokens
	Command  string
	Args     []string
	ReqID    string

	// Admin and Member are resolved once per request.
	Admin  bool
	Member bool

	Logger logx.Logger
	sender transport.Sender
}

// Reply sends text back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.sender.SendText(ctx, r.ChatID, text)
}

// ArgText is the positional args joined by single spaces.
func (r *Request) ArgText() string { return strings.Join(r.Args, " ") }

type Config struct {
	Workers   int
	QueueSize int
	// Timeout applies to commands without their own.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	return c
}

type CommandManager struct {
	mu sync.RWMutex

	root  *cmdNode
	alias map[string]*cmdNode // alias -> leaf node

	cfg    Config
	log    logx.Logger
	sender transport.Sender
	auth   Authorizer
	parent *supervisor.Supervisor

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	jobs chan func()
}

func NewCommandManager(cfg Config, log logx.Logger, sender transport.Sender, auth Authorizer) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &CommandManager{
		root:   newRoot(),
		alias:  map[string]*cmdNode{},
		cfg:    cfg,
		log:    log,
		sender: sender,
		auth:   auth,
		jobs:   make(chan func(), cfg.QueueSize),
	}
}

// SetParent makes background work (menu updates) run under sup.
func (m *CommandManager) SetParent(sup *supervisor.Supervisor) {
	m.runMu.Lock()
	m.parent = sup
	m.runMu.Unlock()
}

// Supervisor returns the command manager's internal supervisor (nil if not running).
func (m *CommandManager) Supervisor() *supervisor.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *supervisor.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) SetRegistry(cmds []Command) {
	root := newRoot()
	alias := map[string]*cmdNode{}
	menuCandidates := make([]Command, 0, len(cmds))

	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		cc := c
		root.add(route, cc)
		menuCandidates = append(menuCandidates, cc)

		leaf := root.find(route)
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = leaf
		}
	}

	m.mu.Lock()
	m.root = root
	m.alias = alias
	m.mu.Unlock()

	// Best-effort command menu update (non-blocking).
	if up, ok := m.sender.(transport.CommandMenuUpdater); ok {
		menu := buildMenuCommands(root, menuCandidates)
		run := func(parent context.Context) {
			ctx, cancel := context.WithTimeout(parent, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(ctx, menu); err != nil {
				m.log.Debug("command menu update failed", logx.Err(err))
			}
		}
		m.runMu.Lock()
		parent := m.parent
		m.runMu.Unlock()
		if parent != nil {
			parent.Go("commands.menu.update", func(ctx context.Context) error {
				run(ctx)
				return nil
			})
		} else {
			go run(context.Background())
		}
	}
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := m.cfg.Workers

	// Internal supervisor keeps the worker pool resilient and observable.
	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(m.log.With(logx.String("comp", "commands.router"))),
		supervisor.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			// Mark as not running before closing so enqueue can degrade gracefully.
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		name := "command.worker." + strconv.Itoa(idx)
		sup.GoRestart(name, func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		// Wait briefly for workers to drain.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			job := m.prepare(ctx, up)
			if job == nil {
				continue
			}
			if !m.tryEnqueue(job) {
				m.log.Warn("command queue full; dropping", logx.String("chat_id", up.Message.ChatID))
			}
		}
	}
}

// Run routes up and runs the command on the calling goroutine.
// It reports whether a command ran.
func (m *CommandManager) Run(ctx context.Context, up transport.Update) bool {
	job := m.prepare(ctx, up)
	if job == nil {
		return false
	}
	job()
	return true
}

// prepare resolves an update to a runnable job, or nil when there is
// nothing to run (not a command, unknown command, access denied).
func (m *CommandManager) prepare(root context.Context, up transport.Update) func() {
	msg := up.Message
	if msg == nil {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return nil
	}
	word := commandWord(parts[0])
	args := parts[1:]

	// snapshot registry
	m.mu.RLock()
	rootNode := m.root
	aliasMap := m.alias
	m.mu.RUnlock()

	var (
		cur  *cmdNode
		path []string
	)
	if leaf, ok := aliasMap[word]; ok && leaf != nil && leaf.cmd != nil {
		cur = leaf
		path = splitRoute(leaf.cmd.Route)
	} else {
		n, ok := rootNode.child(word)
		if !ok {
			m.log.Debug("unknown command", logx.String("cmd", word), logx.String("chat_id", msg.ChatID))
			return nil
		}
		cur = n
		path = []string{word}
	}
	// traverse subcommand tree
	for len(args) > 0 {
		child, ok := cur.child(args[0])
		if !ok {
			break
		}
		cur = child
		path = append(path, child.name)
		args = args[1:]
	}
	if cur.cmd == nil {
		return nil
	}
	cmd := *cur.cmd

	admin, member := m.resolveAccess(msg)
	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.String("chat_id", msg.ChatID),
		logx.String("from_id", msg.SenderID),
		logx.String("cmd", cmd.Route),
	)
	if !allowed(cmd.Access, admin, member) {
		// Denials get no reply so the bot stays quiet in shared chats.
		reqLog.Info("access denied", logx.String("need", cmd.Access.String()))
		return nil
	}

	req := &Request{
		Message:  msg,
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
		Path:     path,
		Command:  cmd.Route,
		Args:     args,
		ReqID:    rid,
		Admin:    admin,
		Member:   member,
		Logger:   reqLog,
		sender:   m.sender,
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = m.cfg.Timeout
	}
	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWUsageReply(),
		MWTimeout(timeout),
	)
	return func() { _ = final(root, req) }
}

func (m *CommandManager) resolveAccess(msg *transport.Message) (admin, member bool) {
	if m.auth == nil {
		return true, true
	}
	ids := []string{msg.ChatID}
	if msg.SenderID != "" && msg.SenderID != msg.ChatID {
		ids = append(ids, msg.SenderID)
	}
	for _, id := range ids {
		if m.auth.IsAdmin(id) {
			admin = true
		}
		if m.auth.IsMember(id) {
			member = true
		}
	}
	return admin, admin || member
}

func allowed(a Access, admin, member bool) bool {
	switch a {
	case AccessAdmin:
		return admin
	case AccessMember:
		return member
	default:
		return true
	}
}
