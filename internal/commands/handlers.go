package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"linkwatch/internal/monitor"
	"linkwatch/internal/notifier"
	"linkwatch/internal/transport/router"
	logx "linkwatch/pkg/logx"
)

// Reporter builds an on-demand status report.
type Reporter interface {
	Current(ctx context.Context) (string, error)
}

// Handlers binds the command surface to its collaborators.
type Handlers struct {
	Proc    *Processor
	Access  *Access
	Store   Store
	Reports Reporter
	Groups  *monitor.GroupCache
	// Format returns the live formatter (timezone and router labels follow reloads).
	Format func() monitor.Formatter
	Log    logx.Logger
}

const notSavedNote = "\n\n⚠️ Perubahan aktif, tetapi belum tersimpan. Penyimpanan akan dicoba ulang otomatis."

// Commands is the registry for router.CommandManager.
func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{Route: "register", Description: "daftarkan device", Usage: "/register <nomor>", Access: router.AccessEveryone, Handle: h.register},
		{Route: "debug", Description: "info chat dan akses", Usage: "/debug", Access: router.AccessEveryone, Handle: h.debug},
		{Route: "cmd", Aliases: []string{"help"}, Description: "bantuan", Usage: "/cmd", Access: router.AccessMember, Handle: h.help},
		{Route: "salam", Description: "status router saat ini", Usage: "/salam", Access: router.AccessMember, Timeout: 3 * time.Minute, Handle: h.salam},
		{Route: "detail", Description: "daftar user link down/up", Usage: "/detail <down|up> <prefix>", Access: router.AccessMember, Handle: h.detailLegacy},
		{Route: "detail down", Description: "daftar user link down", Usage: "/detail down <prefix>", Access: router.AccessMember, Handle: h.detail(monitor.Down)},
		{Route: "detail up", Description: "daftar user link online kembali", Usage: "/detail up <prefix>", Access: router.AccessMember, Handle: h.detail(monitor.Up)},

		{Route: "targets", Description: "kelola target notifikasi", Usage: "/targets <add|remove|list> [id] [all|link]", Access: router.AccessAdmin, Handle: h.targetsRoot},
		{Route: "targets list", Description: "daftar target", Access: router.AccessAdmin, Handle: h.targetsList},
		{Route: "targets add", Description: "tambah target", Usage: "/targets add <id> [all|link]", Access: router.AccessAdmin, Handle: h.targetsAdd},
		{Route: "targets remove", Description: "hapus target", Usage: "/targets remove <id>", Access: router.AccessAdmin, Handle: h.targetsRemove},
		{Route: "threshold", Description: "batas menit downtime", Usage: "/threshold <min> <max>", Access: router.AccessAdmin, Handle: h.threshold},
		{Route: "blacklist", Description: "kelola user yang diabaikan", Usage: "/blacklist <add|remove|list> [nama]", Access: router.AccessAdmin, Handle: h.blacklistRoot},
		{Route: "blacklist list", Description: "daftar blacklist", Access: router.AccessAdmin, Handle: h.blacklistList},
		{Route: "blacklist add", Description: "tambah blacklist", Usage: "/blacklist add <nama>", Access: router.AccessAdmin, Handle: h.blacklistAdd},
		{Route: "blacklist remove", Description: "hapus blacklist", Usage: "/blacklist remove <nama>", Access: router.AccessAdmin, Handle: h.blacklistRemove},
		{Route: "jadwal", Description: "jam laporan otomatis", Usage: "/jadwal [HH:MM ...]", Access: router.AccessAdmin, Handle: h.schedule},
	}
}

func (h *Handlers) logger(req *router.Request) logx.Logger {
	if !req.Logger.IsZero() {
		return req.Logger
	}
	if h.Log.IsZero() {
		return logx.Nop()
	}
	return h.Log
}

// saved appends the retry note when the change is live but not yet durable.
func (h *Handlers) saved(req *router.Request, text string, err error) string {
	if err == nil {
		return text
	}
	h.logger(req).Warn("change not persisted", logx.String("cmd", req.Command), logx.Err(err))
	return text + notSavedNote
}

// persistError reports whether err came from storage rather than validation.
func persistError(err error) bool {
	var ve *ValidationError
	return err != nil && !errors.As(err, &ve)
}

func (h *Handlers) register(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return &ValidationError{Usage: usageRegister}
	}
	device := req.SenderID
	if device == "" {
		device = req.ChatID
	}
	target, err := h.Proc.Register(device, req.Args[0])
	if errors.Is(err, ErrUnknownNumber) {
		return req.Reply(ctx, "❌ Nomor belum terdaftar sebagai target.\nHubungi admin untuk menambahkan nomor Anda terlebih dahulu.")
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("✅ Device berhasil didaftarkan.\n\nDevice: %s\nTarget: %s", device, target))
}

func (h *Handlers) debug(ctx context.Context, req *router.Request) error {
	admins := h.Access.Admins()
	adminText := "-"
	if len(admins) > 0 {
		adminText = strings.Join(admins, "\n")
	}
	targets := h.Store.Targets()
	lines := make([]string, 0, len(targets))
	for _, t := range targets {
		lines = append(lines, fmt.Sprintf("%s (%s)", t.ID, t.Type))
	}
	targetText := "-"
	if len(lines) > 0 {
		targetText = strings.Join(lines, "\n")
	}
	isTarget := h.Access.IsMember(req.ChatID) || (req.SenderID != "" && h.Access.IsMember(req.SenderID))
	text := fmt.Sprintf("🔍 *Debug Info*\n\nChat ID: %s\nSender ID: %s\nIs Admin: %t\nIs Target: %t\n\nAdmin IDs:\n%s\n\nTarget IDs:\n%s\n\nPesan ini bisa dilihat siapa saja untuk debugging.",
		req.ChatID, req.SenderID, req.Admin, isTarget, adminText, targetText)
	return req.Reply(ctx, text)
}

func (h *Handlers) help(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, helpText(req.Admin))
}

func (h *Handlers) salam(ctx context.Context, req *router.Request) error {
	text, err := h.Reports.Current(ctx)
	if err != nil {
		h.logger(req).Warn("on-demand report failed", logx.Err(err))
		return req.Reply(ctx, "Gagal mengambil data monitoring.")
	}
	return req.Reply(ctx, text)
}

func directionLabel(d monitor.Direction) string {
	if d == monitor.Up {
		return "Up"
	}
	return "Down"
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}

// detailLegacy serves "/detail" and the old "/detail <PREFIX>" form.
func (h *Handlers) detailLegacy(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		down := h.Groups.Prefixes(monitor.Down)
		up := h.Groups.Prefixes(monitor.Up)
		if len(down) == 0 && len(up) == 0 {
			return req.Reply(ctx, "Belum ada notifikasi Link Down/Up yang di-grup. Format: /detail <down|up> <prefix>")
		}
		var b strings.Builder
		b.WriteString("Format: /detail <down|up> <prefix>\n\n")
		if len(down) > 0 {
			b.WriteString("Prefix Down tersedia:\n" + bullets(down) + "\n\n")
		}
		if len(up) > 0 {
			b.WriteString("Prefix Up tersedia:\n" + bullets(up))
		}
		return req.Reply(ctx, strings.TrimSpace(b.String()))
	}
	if g, ok := h.Groups.Get(monitor.Down, req.Args[0]); ok && len(g.Users) > 0 {
		return req.Reply(ctx, h.Format().Detail(monitor.Down, g))
	}
	return &ValidationError{Usage: usageDetail}
}

func (h *Handlers) detail(d monitor.Direction) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		label := directionLabel(d)
		available := h.Groups.Prefixes(d)
		if len(req.Args) == 0 {
			if len(available) == 0 {
				return req.Reply(ctx, fmt.Sprintf("Belum ada notifikasi Link %s yang di-grup.", label))
			}
			return req.Reply(ctx, fmt.Sprintf("Format: /detail %s <prefix>\n\nPrefix %s tersedia:\n%s", d, label, bullets(available)))
		}
		prefix := strings.ToUpper(req.Args[0])
		if g, ok := h.Groups.Get(d, prefix); ok && len(g.Users) > 0 {
			return req.Reply(ctx, h.Format().Detail(d, g))
		}
		state := "down"
		if d == monitor.Up {
			state = "online"
		}
		if len(available) == 0 {
			return req.Reply(ctx, fmt.Sprintf("Tidak ada data link %s untuk prefix tersebut.", d))
		}
		return req.Reply(ctx, fmt.Sprintf("Tidak ada data untuk prefix %q yang %s.\n\nPrefix %s tersedia:\n%s", prefix, state, label, bullets(available)))
	}
}

func typeLabel(t notifier.SubscriptionType) string {
	if t == notifier.Link {
		return "hanya link down"
	}
	return "semua notifikasi"
}

func (h *Handlers) targetsRoot(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return h.targetsList(ctx, req)
	}
	return &ValidationError{Usage: usageTargets}
}

func (h *Handlers) targetsList(ctx context.Context, req *router.Request) error {
	targets := h.Store.Targets()
	if len(targets) == 0 {
		return req.Reply(ctx, "Belum ada target.")
	}
	var b strings.Builder
	b.WriteString("Target saat ini:")
	for i, t := range targets {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, t.ID, typeLabel(t.Type))
	}
	return req.Reply(ctx, b.String())
}

func (h *Handlers) targetsAdd(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return &ValidationError{Usage: usageTargets}
	}
	typ := ""
	if len(req.Args) > 1 {
		typ = req.Args[1]
	}
	t, added, err := h.Proc.AddTarget(ctx, req.Args[0], typ)
	if !persistError(err) && err != nil {
		return err
	}
	if !added {
		return req.Reply(ctx, "Target sudah ada.")
	}
	h.Proc.audit(ctx, req.SenderID, req.ChatID, "targets.add", t.ID, err)
	return req.Reply(ctx, h.saved(req, fmt.Sprintf("Target ditambahkan: %s (%s)", t.ID, typeLabel(t.Type)), err))
}

func (h *Handlers) targetsRemove(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return &ValidationError{Usage: usageTargets}
	}
	id := req.Args[0]
	removed, err := h.Proc.RemoveTarget(ctx, id)
	if !persistError(err) && err != nil {
		return err
	}
	if !removed {
		return req.Reply(ctx, "Target tidak ditemukan: "+id)
	}
	h.Proc.audit(ctx, req.SenderID, req.ChatID, "targets.remove", id, err)
	return req.Reply(ctx, h.saved(req, "Target dihapus: "+id, err))
}

func (h *Handlers) threshold(ctx context.Context, req *router.Request) error {
	t, err := ParseThreshold(req.Args)
	if err != nil {
		return err
	}
	err = h.Proc.SetThreshold(ctx, t)
	if !persistError(err) && err != nil {
		return err
	}
	h.Proc.audit(ctx, req.SenderID, req.ChatID, "threshold.set", req.ArgText(), err)
	return req.Reply(ctx, h.saved(req, fmt.Sprintf("Threshold diset: %s-%s menit", formatMinutes(t.MinMinutes), formatMinutes(t.MaxMinutes)), err))
}

func (h *Handlers) blacklistRoot(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return h.blacklistList(ctx, req)
	}
	return &ValidationError{Usage: usageBlacklist}
}

func (h *Handlers) blacklistList(ctx context.Context, req *router.Request) error {
	users := h.Store.Blacklist()
	if len(users) == 0 {
		return req.Reply(ctx, "Blacklist kosong.")
	}
	var b strings.Builder
	b.WriteString("Blacklist:")
	for i, u := range users {
		fmt.Fprintf(&b, "\n%d. %s", i+1, u)
	}
	return req.Reply(ctx, b.String())
}

func (h *Handlers) blacklistAdd(ctx context.Context, req *router.Request) error {
	name := req.ArgText()
	added, err := h.Proc.AddBlacklist(ctx, name)
	if !persistError(err) && err != nil {
		return err
	}
	if !added {
		return req.Reply(ctx, "Sudah ada di blacklist.")
	}
	h.Proc.audit(ctx, req.SenderID, req.ChatID, "blacklist.add", name, err)
	return req.Reply(ctx, h.saved(req, "Ditambahkan ke blacklist: "+name, err))
}

func (h *Handlers) blacklistRemove(ctx context.Context, req *router.Request) error {
	name := req.ArgText()
	removed, err := h.Proc.RemoveBlacklist(ctx, name)
	if !persistError(err) && err != nil {
		return err
	}
	if !removed {
		return req.Reply(ctx, "Tidak ada di blacklist: "+name)
	}
	h.Proc.audit(ctx, req.SenderID, req.ChatID, "blacklist.remove", name, err)
	return req.Reply(ctx, h.saved(req, "Dihapus dari blacklist: "+name, err))
}

func (h *Handlers) schedule(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, "Jadwal saat ini: "+strings.Join(h.Store.ScheduleTimes(), ", "))
	}
	labels, err := h.Proc.SetSchedule(ctx, req.Args)
	if !persistError(err) && err != nil {
		return err
	}
	if labels == nil {
		// Trigger install failed; nothing changed.
		return err
	}
	h.Proc.audit(ctx, req.SenderID, req.ChatID, "schedule.set", strings.Join(labels, ","), err)
	return req.Reply(ctx, h.saved(req, "Jadwal laporan diperbarui: "+strings.Join(labels, ", "), err))
}
