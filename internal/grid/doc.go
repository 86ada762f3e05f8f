// Package grid owns the spatial partitioning of a recording's image plane.
//
// Responsibilities: mapping a flat square index to grid coordinates and pixel
// bounds, locating tracks in squares, iterative background-density
// estimation, neighbour-aware square selection and density arithmetic.
// Key types: Descriptor, Cell, Square, NeighbourMode.
//
// The package is pure: no file I/O and no logging. Tau fitting lives in
// internal/fit and is driven from internal/squares.
package grid
