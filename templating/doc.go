// Package templating renders the shared files dispatched to repositories.
//
// A Loader maps namespaces to directories of an fs.FS. A Renderer expands
// its templates with valyala/fasttemplate against the parameters of a set
// of Context values (application, package manifest, CI build), flattened to
// dotted tag names. Templates may declare named blocks that can be rendered
// on their own, which is how pull request titles and bodies are produced.
//
// Compiled templates are kept in a Cache, an LRU bounded by size, owned by
// the caller for the duration of one run.
package templating
