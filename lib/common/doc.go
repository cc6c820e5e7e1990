// Package common holds the pieces shared by the library packages and the
// command line: the logger factory plugged into dragonboat's logger package
// and the validated configuration struct.
//
// Every package obtains its logger by name:
//
//	var log = logger.GetLogger("store")
//
// and the command line calls InitLoggers once with the configured level.
package common
