// Package analysis defines the shared domain vocabulary: analysis categories,
// job lifecycle states, and the cache data kinds fetched per project.
package analysis
