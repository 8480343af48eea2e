// Package textutil holds small string helpers shared by packages that turn
// book titles into filesystem names.
package textutil
