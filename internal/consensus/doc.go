// Package consensus gates the automatic merge.
//
// A run merges automatically only when every domain passed QA, the
// average safety score clears the configured threshold, and no blocking
// conflict was detected. Anything short of that routes the run to a
// human with a reason naming exactly what failed.
package consensus
