// Package script loads tasks.star files. The script is Starlark: options are declared in
// the global scope and tasks inside a configure() function. Loading produces plain task
// definitions which can be cached and are turned into a taskgraph.Registry by Build.
package script
