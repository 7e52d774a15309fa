// Package varlinklog centralizes the structured logging the runtime emits;
// currently the only user is Listener.Serve, which logs connections that
// end with an error. It is intentionally tiny:
// the core never requires a particular logging configuration, it just needs
// somewhere consistent to send diagnostics that would otherwise be
// scattered fmt.Printf/log.Printf calls.
package varlinklog

import "github.com/sirupsen/logrus"

// Logger is the package-wide logrus instance used by For. Callers may
// replace it (e.g. to redirect output or change the formatter) before
// starting a Listener.
var Logger = logrus.StandardLogger()

// For returns a logrus.Entry tagged with the given component name, e.g.
// "listener".
func For(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}
