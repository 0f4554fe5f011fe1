// Command waveline is the CLI for the audio analysis queue: add files,
// inspect and manage jobs, and run the processing daemon.
package main
