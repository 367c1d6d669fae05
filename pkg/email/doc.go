// Package email sends plain operational notifications.
//
// Sender is implemented by PostmarkSender for production and LogSender for
// environments without a Postmark token, where messages are written to the
// structured log instead of leaving the process.
package email
