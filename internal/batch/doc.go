// Package batch partitions item ids into fixed-size chunks and feeds them to
// a worker one chunk at a time, pausing between chunks to stay under the
// remote quota. Chunk failures are recorded and never abort the run.
package batch
