// Command darkroom is the CLI for the media import pipeline: one-shot
// imports, session inspection and resumption, and the inbox-watching
// daemon mode.
package main
