// Package process launches supervised daemons as detached local processes.
//
// Every child becomes the leader of a new session so it survives the
// controlling terminal of the invoking shell. Standard output and standard
// error share one pipe whose lines are forwarded to the logger by two
// goroutines: a reader that scans the pipe and a forwarder that writes each
// line tagged with the daemon's display name. Neither goroutine is joined;
// both finish once the child has released the pipe.
package process
