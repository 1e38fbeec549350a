// Package postbuild post-processes the output of a bundler build.
//
// A Build describes what the host bundler produced: an in-memory Bundle of
// VirtualFiles plus the output directories they end up in. Plugins hook
// into the phases executed by Run. Compression writes compressed siblings
// of eligible outputs and Tarball packs the final output into ustar
// archives. When both are used in one build, the tarball waits for the
// compression capability to finish and packs its results.
package postbuild
