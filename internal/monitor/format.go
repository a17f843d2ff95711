package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/hako/durafmt"
)

const unknownTime = "(waktu tidak diketahui)"

var indonesianUnits = durafmt.Units{
	Year:        durafmt.Unit{Singular: "tahun", Plural: "tahun"},
	Week:        durafmt.Unit{Singular: "minggu", Plural: "minggu"},
	Day:         durafmt.Unit{Singular: "hari", Plural: "hari"},
	Hour:        durafmt.Unit{Singular: "jam", Plural: "jam"},
	Minute:      durafmt.Unit{Singular: "menit", Plural: "menit"},
	Second:      durafmt.Unit{Singular: "detik", Plural: "detik"},
	Millisecond: durafmt.Unit{Singular: "milidetik", Plural: "milidetik"},
	Microsecond: durafmt.Unit{Singular: "mikrodetik", Plural: "mikrodetik"},
}

// Formatter renders operator-facing messages in Indonesian.
type Formatter struct {
	Location *time.Location
	TZLabel  string
	// Labels maps router names to display names.
	Labels map[string]string
	Now    func() time.Time
}

func (f Formatter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// Current is the formatter's clock.
func (f Formatter) Current() time.Time { return f.now() }

func (f Formatter) loc() *time.Location {
	if f.Location != nil {
		return f.Location
	}
	return time.Local
}

func (f Formatter) RouterLabel(router string) string {
	if l, ok := f.Labels[router]; ok && l != "" {
		return l
	}
	return router
}

// Date renders dd/mm/yyyy.
func (f Formatter) Date(t time.Time) string { return t.In(f.loc()).Format("02/01/2006") }

// Clock renders HH:MM.
func (f Formatter) Clock(t time.Time) string { return t.In(f.loc()).Format("15:04") }

// DateTime renders "dd/mm/yyyy HH:MM <tz>", or the unknown marker for zero times.
func (f Formatter) DateTime(t time.Time) string {
	if t.IsZero() {
		return unknownTime
	}
	s := f.Date(t) + " " + f.Clock(t)
	if f.TZLabel != "" {
		s += " " + f.TZLabel
	}
	return s
}

// Duration renders minutes as e.g. "2 jam 5 menit".
func Duration(minutes float64) string {
	d := time.Duration(minutes * float64(time.Minute)).Truncate(time.Minute)
	if d < time.Minute {
		return "< 1 menit"
	}
	return durafmt.Parse(d).LimitFirstN(2).Format(indonesianUnits)
}

func (f Formatter) IndividualDown(r OfflineRecord) string {
	s := fmt.Sprintf("👤 User: %s\n⏰ Down sejak: %s", r.User, f.DateTime(r.Since))
	if r.DurationMinutes > 0 {
		s += "\n⏳ Durasi: " + Duration(r.DurationMinutes)
	}
	return s
}

func (f Formatter) GroupedDown(g Group) string {
	return fmt.Sprintf("💥 Link %s Down\n📟 Router: %s\n👥 Jumlah: %d user\n⏰ Down sejak: %s",
		g.Prefix, f.RouterLabel(g.Router), len(g.Users), f.DateTime(g.Latest()))
}

func (f Formatter) IndividualUp(r OfflineRecord) string {
	return fmt.Sprintf("✅ User Online Kembali\n👤 User: %s\n⏰ Online kembali: %s", r.User, f.DateTime(f.now()))
}

func (f Formatter) GroupedUp(g Group) string {
	return fmt.Sprintf("✅ Link %s Online Kembali\n📟 Router: %s\n👥 Jumlah: %d user\n⏰ Online kembali: %s",
		g.Prefix, f.RouterLabel(g.Router), len(g.Users), f.DateTime(f.now()))
}

// Detail lists the members of a cached grouped notification.
func (f Formatter) Detail(kind Direction, g Group) string {
	status := "Down"
	if kind == Up {
		status = "Online Kembali"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Detail Link %s %s*\n📟 Router: %s\n👥 Total: %d user\n\nDaftar user:\n",
		g.Prefix, status, f.RouterLabel(g.Router), len(g.Users))
	for i, u := range g.Users {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, u.User)
	}
	return b.String()
}
