package report

import (
	"fmt"
	"strings"

	"linkwatch/internal/monitor"
	"linkwatch/internal/source"
)

// Build renders the status summary. Blacklisted users are left out of the
// offline lists and counts.
//
// When the source omits counts, total falls back to offline+running and
// active to max(total-offline, 0).
func Build(title string, f monitor.Formatter, statuses []source.RouterStatus, blacklist []string) string {
	var b strings.Builder
	t := f.Current()
	fmt.Fprintf(&b, "Monitoring %s, %s\n%s", title, f.Date(t), f.Clock(t))
	if f.TZLabel != "" {
		b.WriteString(" " + f.TZLabel)
	}
	b.WriteString("\n\n")

	var totalActive, totalAll int64
	for _, st := range statuses {
		offline := make([]string, 0, len(st.Offline))
		for _, u := range st.Offline {
			if !monitor.IsBlacklisted(blacklist, u) {
				offline = append(offline, u)
			}
		}
		n := int64(len(offline))

		total := st.Total.ValueOrZero()
		if total <= 0 {
			total = n + st.Running.ValueOrZero()
		}
		var active int64
		if st.Running.Valid {
			active = st.Running.Int64
		} else {
			active = max(total-n, 0)
		}
		totalActive += active
		totalAll += total

		fmt.Fprintf(&b, "%s\n%d/%d aktif | Offline %d\n", f.RouterLabel(st.Router), active, total, n)
		if n > 0 {
			b.WriteString("Offline list:\n")
			for _, u := range offline {
				b.WriteString("- " + u + "\n")
			}
		} else {
			b.WriteString("Tidak ada user offline\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Total aktif: %d/%d koneksi", totalActive, totalAll)
	return strings.TrimSpace(b.String())
}
