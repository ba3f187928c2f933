/*
Package errors implements custom error interfaces for the settlement core.

The idea is to reuse as many errors from this package as possible and define
custom package errors when absolutely necessary. Errors are categorized by
root error instances registered with a unique code. Instances created during
runtime wrap a root error, so tests can match on the category while the
message carries the context.
*/
package errors
