// Package tool defines the callable tool contract and the extraction of tool
// commands embedded in model replies as fenced JSON blocks.
package tool
