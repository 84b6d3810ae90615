// Package toc builds the table of contents of a Markdown document.
//
// The pipeline is ExtractHeadings, then Assign (one fresh Slugger per document), then
// BuildTree. Headings are found on goldmark's block structure with the ParseHeadingLine
// rule; the renderer walks the same structure through WalkHeadings, so every id in the
// tree matches an anchor in the rendered page.
package toc
