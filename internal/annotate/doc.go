// Package annotate adds Matomo content-tracking attributes to rendered HTML.
//
// Fragment marks the top-level elements of a fragment as one tracked content
// block (data-track-content, data-content-name) and labels every link,
// button, and submit input inside it with data-content-piece. Existing block
// markers are stripped first so that annotating twice replaces rather than
// duplicates them; existing pieces are kept.
//
// The annotator only touches the nodes it is given. When tracked regions nest,
// whichever region is annotated last owns the shared elements. Document relies
// on this: it annotates the innermost blocks first so the outermost block wins.
package annotate
