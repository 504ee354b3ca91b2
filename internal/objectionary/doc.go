// Package objectionary looks up EO objects in the remote Objectionary.
//
// A run first pins a tag (e.g. "master" or "0.28.10") to a commit hash with a
// CommitHash, then reads objects at that hash. Every object source reports
// absence as (Object{}, false, nil); only transport and protocol failures are
// errors. Cached and Disk wrap another source to avoid repeated downloads.
package objectionary
