// Package artifactcache checks a shared remote cache for analysis artifacts
// before the local analyzer is invoked. Hits skip the extraction run
// entirely; misses fall through to normal processing.
package artifactcache
