// Package shredding turns an uploaded document into ordered page units.
//
// It is the first pipeline stage: the source file is extracted to text,
// split into fixed-size word groups, and inserted as units in one
// transaction. A job that already has units is left untouched so resumed
// runs never duplicate pages.
package shredding
