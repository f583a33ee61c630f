// Package crawler walks a legal-publication website, finds the PDF documents
// it links to, and turns each one into a corpus record.
//
// A Crawler owns the visited set and the frontier for a single site. Pages are
// fetched through a Fetcher, PDFs through a DocumentCache, and PDF text through
// an Extractor, so every network and process boundary can be swapped in tests.
package crawler
