// Package logging provides the two kinds of output cappit produces.
//
// Debug and audit logs go through a logrus logger. They are hidden unless
// --verbose is set, and can additionally be written to a rotating log file:
//
//	logging.Setup(logging.Options{Verbose: true, File: "/var/log/cappit.log"})
//	logging.Log.WithFields(logrus.Fields{"challenge": name, "port": port}).Info("registered")
//
// Operator messages are short status lines with an emoji prefix, colored
// when the output is a terminal:
//
//	logging.Step("Generate Dockerfile...")
//	logging.Success("Challenge is now running on %d", port)
//	logging.Warning("container %s has no registry entry", name)
//	logging.Failure("Build error occurred: %v", err)
//
// Step, Info and Success write to stdout; Warning and Failure to stderr.
package logging
