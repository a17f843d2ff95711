package eventbus

// Event types published by linkwatch components.
const (
	CycleCompleted = "monitor.cycle"
	CycleSkipped   = "monitor.cycle_skipped"
	NotifySent     = "notify.sent"
	NotifyFailed   = "notify.failed"
	ReportSent     = "report.sent"
	ReportSkipped  = "report.skipped"
	PersistFailed  = "store.persist_failed"
	ConfigReloaded = "config.reloaded"
	TaskFailed     = "task.failed"
)
