// Package analysis derives the book-wide style guide and the character
// reference sheet that every later generation call is anchored to.
//
// The style guide is persisted before the sheet is requested, so a failure
// in image generation never costs a second analysis call on resume.
package analysis
