// Package activation moves symbols onto the live tick feed and tracks the
// cost of repeated failure.
//
// Every symbol has a state (unknown, activating, active, failed) and a
// failure counter. Once the counter reaches the retry budget the symbol is
// exhausted: the eager default pass skips it, and only an explicit grant
// (one per subscribe call) buys a further lazy attempt.
//
// Activation never returns an error; failures are logged and counted.
package activation
