// Package scheduler registers cron, interval and daily triggers and runs
// their jobs with a timeout, panic recovery and overlap skipping.
//
// Daily triggers can be managed as a named group. ReplaceDaily swaps a whole
// group under one lock and bumps the group generation; a trigger of an older
// generation that is already firing does nothing.
package scheduler
