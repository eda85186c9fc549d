package portal

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePages serves a fixed page sequence without a browser.
type fakePages struct {
	pages   []string
	current int
	served  []int
}

func (f *fakePages) HTML(context.Context) (string, error) {
	f.served = append(f.served, f.current+1)
	return f.pages[f.current], nil
}

func (f *fakePages) NextPage(context.Context) (bool, error) {
	if f.current+1 >= len(f.pages) {
		return false, nil
	}
	f.current++
	return true, nil
}

func pageWithLinks(links ...string) string {
	var cards []string
	for i, link := range links {
		cards = append(cards, cardHTML(fmt.Sprintf("Depto %d", i), "UF", "4.000", link))
	}
	return resultsPage(cards...)
}

func TestCollectPagesStopsWhenPageRepeatsAllLinks(t *testing.T) {
	src := &fakePages{pages: []string{
		pageWithLinks("https://example.cl/1", "https://example.cl/2"),
		pageWithLinks("https://example.cl/3", "https://example.cl/4"),
		// Page 3 repeats everything from page 2.
		pageWithLinks("https://example.cl/3", "https://example.cl/4"),
		pageWithLinks("https://example.cl/5"),
	}}

	listings, err := collectPages(context.Background(), src, zerolog.Nop())
	require.NoError(t, err)

	assert.Len(t, listings, 4)
	// Page 3 yields zero new links, so page 4 is never requested.
	assert.Equal(t, []int{1, 2, 3}, src.served)
}

func TestCollectPagesStopsWhenNoNextControl(t *testing.T) {
	src := &fakePages{pages: []string{
		pageWithLinks("https://example.cl/1"),
	}}

	listings, err := collectPages(context.Background(), src, zerolog.Nop())
	require.NoError(t, err)

	assert.Len(t, listings, 1)
	assert.Equal(t, []int{1}, src.served)
}

func TestCollectPagesScopesLinkSetToOneWalk(t *testing.T) {
	// First URL captures links 1 and 2.
	first := &fakePages{pages: []string{
		pageWithLinks("https://example.cl/1", "https://example.cl/2"),
	}}
	listings, err := collectPages(context.Background(), first, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, listings, 2)

	// A later URL whose page 2 repeats those same links must still walk on:
	// its own set has not seen them, so they count as new and page 3 is
	// fetched.
	second := &fakePages{pages: []string{
		pageWithLinks("https://example.cl/b1"),
		pageWithLinks("https://example.cl/1", "https://example.cl/2"),
		pageWithLinks("https://example.cl/b2", "https://example.cl/b3"),
	}}
	listings, err = collectPages(context.Background(), second, zerolog.Nop())
	require.NoError(t, err)

	assert.Len(t, listings, 5)
	assert.Equal(t, []int{1, 2, 3}, second.served)
}
