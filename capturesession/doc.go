// Package capturesession implements the Capture Session Controller: the
// top-level state machine that owns a Device Adapter device handle, runs
// a single-threaded event loop over it, and fans Device Adapter callbacks
// back out as listener notifications.
//
// Every mutation of native capture state happens on the event loop; every
// exported request method here posts an event and returns without
// blocking, except CloseCamera, which blocks until the event loop has
// joined. UpdateOrientation and State touch an atomic directly and post
// nothing, and CaptureHdr posts nothing for a request it rejects.
package capturesession
