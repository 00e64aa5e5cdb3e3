// Package common holds the types shared by the RPC server, client and CLI.
//
// Key Components:
//
//   - Message: a single struct for every request and response. Documents,
//     filters and updates travel as document.Encode records, errors as text
//     plus their store.RetCode. Factory functions exist for every operation.
//
//   - MessageType: the operation a message belongs to.
//
//   - ServerConfig and ClientConfig: settings of the binaries, filled from
//     flags, environment and .env files by the cmd package.
//
//   - InitLoggers: installs the log format on dragonboat's logger facade and
//     sets the level of all loggers of the module.
package common
