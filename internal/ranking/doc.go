// Package ranking orders the competitors of a class.
//
// Rank is a pure sort over entries. Board keeps the entries of every class
// and re-sorts a class lazily, only after one of its entries changed.
package ranking
