// Package prompting turns each page into an image prompt, in order.
//
// Pages are processed strictly sequentially: each prompt is conditioned on
// the continuity summary of the page before it, and the first page is
// conditioned on a fixed bootstrap summary. Pages that already carry a
// usable prompt are not regenerated, but their summary is still produced
// (or reused) so the chain stays intact for the pages after them.
package prompting
