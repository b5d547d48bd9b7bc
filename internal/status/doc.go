// Package status tracks live run state from workflow events.
//
// The tracker is itself an event sink: wire it next to the external
// sinks and every state transition lands here too. Reads return deep
// copies, so snapshots are safe to serialize while a run is moving.
package status
