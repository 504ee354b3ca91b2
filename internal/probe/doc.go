// Package probe runs one discovery pass over the catalog. Every program that
// has not been probed yet has its probe metas read, each referenced object is
// looked up in the Objectionary, and the objects that exist are added to the
// catalog as dependencies. A program is marked probed only after all of its
// references were looked up, so an interrupted or failed program is simply
// retried by the next pass.
package probe
