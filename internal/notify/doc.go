// Package notify sends a plain-text summary of each planning run to a
// Telegram chat.
package notify
