// Package notifier routes outbound messages to subscribed targets.
//
// Every message carries a Category. A target receives it when its
// SubscriptionType is eligible for that category:
//
//	individual -> all
//	grouped    -> all, link
//	report     -> all
//
// # Pacing
//
// Sends are sequential and spaced by a shared token bucket, so the gap holds
// across separate Dispatch calls made from different components.
//
// # Failures
//
// A failing target is logged, counted and skipped; the remaining targets
// still receive the message.
package notifier
