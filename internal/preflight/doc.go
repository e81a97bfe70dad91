// Package preflight provides readiness checks for the directories, binaries
// and model providers callscope depends on.
//
// The CLI "callscope preflight" command prints every result; "serve" and
// "watch" run the offline checks at startup and refuse to start when a
// required one fails. Provider checks make a real request and only run when
// asked for.
package preflight
