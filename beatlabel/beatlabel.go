// Package beatlabel encodes the five AAMI heartbeat classes used to label
// beat segments.
package beatlabel

import (
	"fmt"
	"strings"
)

// Class is a heartbeat class. Its integer value is the label stored next to
// each segment.
type Class int

const (
	N Class = iota // normal and bundle branch block beats
	S              // supraventricular ectopic
	V              // ventricular ectopic
	F              // fusion of ventricular and normal
	Q              // paced, unclassifiable, or anything unknown
)

// Unknown is the class that every unrecognized label or index falls back to.
const Unknown = Q

var classNames = [...]string{
	N: "N",
	S: "S",
	V: "V",
	F: "F",
	Q: "Q",
}

// Classes lists every class in index order.
func Classes() []Class {
	return []Class{N, S, V, F, Q}
}

func (c Class) String() string {
	if c < N || c > Q {
		return classNames[Unknown]
	}
	return classNames[c]
}

// Valid reports whether c is one of the five canonical classes.
func (c Class) Valid() bool {
	return c >= N && c <= Q
}

// Parse returns the class named by label. Unlike LabelToIndex it reports
// whether label was recognized. Matching is exact: "n" is not "N".
func Parse(label string) (Class, error) {
	for i, name := range classNames {
		if name == label {
			return Class(i), nil
		}
	}

	return Unknown, fmt.Errorf("unrecognized beat label %q", label)
}

// LabelToIndex maps a label string to its class index. Unrecognized labels
// map to the index of Q.
func LabelToIndex(label string) int {
	c, err := Parse(label)
	if err != nil {
		return int(Unknown)
	}

	return int(c)
}

// IndexToLabel maps a class index to its label string. Unrecognized indices
// map to "Q".
func IndexToLabel(index int) string {
	return Class(index).String()
}

// aamiSymbols groups the MIT-BIH beat annotation symbols into AAMI classes.
var aamiSymbols = map[string]Class{
	// Normal, left and right bundle branch block, atrial and nodal escape
	"N": N, "L": N, "R": N, "e": N, "j": N,

	// Atrial premature, aberrated atrial premature, nodal premature,
	// supraventricular premature
	"A": S, "a": S, "J": S, "S": S,

	// Premature ventricular contraction, ventricular escape
	"V": V, "E": V,

	"F": F,

	// Paced, fusion of paced and normal, unclassifiable
	"/": Q, "f": Q, "Q": Q,
}

// FromSymbol maps a beat annotation symbol to its AAMI class. Symbols that do
// not annotate a beat, such as rhythm changes or noise markers, report false.
func FromSymbol(symbol string) (Class, bool) {
	c, ok := aamiSymbols[strings.TrimSpace(symbol)]
	return c, ok
}
