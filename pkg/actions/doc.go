// Package actions contains the task actions taskrun ships with: shell commands executed
// through a portable shell interpreter, and file operations (delete, copy, concat,
// compress) that behave the same on every platform.
package actions
