// Package cmd implements the command-line interface of dDoc. It provides
// a command to run a document server and commands to work with one as a
// client.
//
// The package is organized into several subpackages:
//
//   - serve: starts a server for one database (engine, schema, endpoint)
//   - docs: document operations against a server (insert, find, update, ...)
//     and a performance test
//   - util: shared flag, configuration and JSON helpers (internal use)
//
// Every flag can also be set as an environment variable DDOC_<FLAG>, e.g.
// DDOC_DATA_DIR=/var/lib/ddoc. Variables are also read from .env and
// .env.local in the working directory.
//
// See ddoc -help for a list of all commands.
package cmd
