// Package query implements the predicate evaluator of the document store.
//
// A Filter is a conjunction of Conditions. There are exactly two kinds:
//
//   - Equals: the field is present and strictly equal to a value (see
//     document.Equal for what strict means across Int and Float).
//   - Matches: the field is a string that satisfies a regular expression.
//
// Filters are evaluated against a full scan of a collection; declared
// indexes are never consulted.
//
// Parse accepts the dynamic filter shape that travels over the wire and
// through the CLI, where a field maps either to a literal value or to an
// object {"$regex": pattern, "$options": flags}. Objects with other keys are
// not operators: they are compared literally.
package query
