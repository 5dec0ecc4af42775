// Package digester calculates SHA256 content digests. Rendering compares the
// digest of a freshly rendered file with the one on disk to skip rewriting
// unchanged files.
package digester
