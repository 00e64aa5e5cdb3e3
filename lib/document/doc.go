// Package document defines the value model of the document store.
//
// A Document maps field names to Values. The set of Value variants is closed
// (Null, Bool, Int, Float, String, Array, Document), which keeps equality,
// merging and encoding total: every function in this package handles every
// variant and nothing else.
//
// Key Components:
//
//   - Values: the variant types and Kind for switching on them.
//   - Equal: strict equality as used by the query evaluator. Int and Float
//     compare numerically, arrays and documents compare deeply.
//   - FromAny / ToAny: conversion from and to native Go values, used at the
//     edges (CLI, callers building documents from maps).
//   - Encode / Decode: the deterministic binary record format stored by the
//     db engines.
//   - MarshalJSON / ParseJSON: JSON with sorted keys that keeps the Int/Float
//     distinction across a round trip.
//
// Example:
//
//	doc := document.MustFromMap(map[string]any{
//		"name": "Alice",
//		"tags": []string{"lead", "kfc"},
//	})
//	rec := document.Encode(doc)
//	back, _ := document.Decode(rec) // document.Equal(doc, back) == true
package document
