// Package transcript normalizes live transcript records into display lines.
//
// Records come from a third-party real-time transport whose shape drifts
// between SDK versions, so a Message is kept as a loosely typed JSON object
// and every accessor degrades to a zero value instead of failing:
//
//   - ExtractText finds the best-effort text payload ("" when nothing fits)
//   - Message.Identity resolves the author identity
//   - Message.Key returns the rendering key (id, else positional index)
//
// Render turns a whole snapshot into DisplayLines. It is pure and idempotent,
// so callers re-run it on every snapshot instead of tracking deltas.
package transcript
