// Package pipeline runs the registered tasks against one assembly working
// directory. Registration order is the dependency order, so there is no
// scheduler: every task runs once, in order, and decides for itself whether
// it has anything to do. Each run is recorded in <workdir>/.pynome/state.json
// so later invocations and the status browser can show what happened.
package pipeline
