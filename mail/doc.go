// Package mail holds accessgate.Mailer implementations. smtpmail and
// resendmail deliver directly, mailqueue defers delivery to an asynq worker,
// and logmail only logs, for development.
package mail
