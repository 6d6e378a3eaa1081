// Package broadcast implements the loop that turns subscriptions into
// published quotes.
//
// Each iteration:
//   - Snapshots the room -> symbols map
//   - Resolves every distinct symbol once, with bounded concurrency
//   - Publishes the quote to every room holding that symbol
//
// Unavailable symbols are skipped for the iteration. A panic or a fully
// failed publish round makes the loop wait ErrorBackoff instead of Interval.
package broadcast
