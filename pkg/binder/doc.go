// Package binder populates request structs from JSON bodies, route
// parameters and query strings. Each binder only touches fields carrying its
// own struct tag (`json`, `path`, `query`), so several binders can be applied
// to one request value in sequence.
//
// Binders that have nothing to read return ErrBinderNotApplicable, which
// handler.Wrap skips silently.
package binder
