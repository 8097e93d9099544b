package http

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/bookshelf/internal/search"
)

func TestUIController_BooksPage(t *testing.T) {
	env := newTestEnv(t)

	r := env.get(t, "/")

	require.Equal(t, http.StatusOK, r.Code)
	assert.Contains(t, r.Body, "Dune")
	assert.Contains(t, r.Body, "Neuromancer")
	assert.Contains(t, r.Body, `href="/books/1/edit"`)
	assert.Contains(t, r.Body, `sse-connect="/ui/events"`)
}

func TestUIController_BooksPage_LoadError(t *testing.T) {
	env := newTestEnv(t)
	env.api.setErrors(errors.New("connection refused"), nil, nil)

	r := env.get(t, "/")

	require.Equal(t, http.StatusOK, r.Code)
	assert.Contains(t, r.Body, search.LoadErrorMessage)
	assert.Contains(t, r.Body, "Retry")
}

func TestUIController_Search(t *testing.T) {
	env := newTestEnvWithDebounce(t, 300*time.Millisecond)
	env.get(t, "/")

	for _, q := range []string{"d", "du", "dun"} {
		r := env.postForm(t, "/ui/search", url.Values{"q": {q}})
		require.Equal(t, http.StatusAccepted, r.Code)
	}

	state := env.waitState(t, func(s stateResponse) bool {
		return s.Search.Settled == "dun" && !s.Search.Loading
	})
	assert.Equal(t, "dun", state.Search.Raw)
	assert.Equal(t, 1, state.Count)

	assert.Equal(t, []string{"dun"}, env.api.Searches(), "only the settled value is fetched")

	list := env.get(t, "/ui/books")
	assert.Contains(t, list.Body, "Dune")
	assert.NotContains(t, list.Body, "Neuromancer")
}

func TestUIController_Search_HTMX(t *testing.T) {
	env := newTestEnv(t)

	r := env.postForm(t, "/ui/search", url.Values{"q": {"neuro"}}, "HX-Request", "true")

	assert.Equal(t, http.StatusNoContent, r.Code)
}

func TestUIController_SearchBlankListsAll(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/")

	env.postForm(t, "/ui/search", url.Values{"q": {"dune"}})
	env.waitState(t, func(s stateResponse) bool { return s.Search.Settled == "dune" && !s.Search.Loading })

	env.postForm(t, "/ui/search", url.Values{"q": {"   "}})
	state := env.waitState(t, func(s stateResponse) bool { return s.Search.Settled == "   " && !s.Search.Loading })

	assert.Equal(t, 2, state.Count)
}

func TestUIController_Refresh(t *testing.T) {
	env := newTestEnv(t)
	env.api.setErrors(errors.New("boom"), nil, nil)
	env.get(t, "/")
	env.api.setErrors(nil, nil, nil)

	r := env.postForm(t, "/ui/refresh", url.Values{})
	require.Equal(t, http.StatusAccepted, r.Code)

	state := env.waitState(t, func(s stateResponse) bool { return s.Loaded && !s.Search.Loading })
	assert.Empty(t, state.Search.Error)
	assert.Equal(t, 2, state.Count)
}

func TestUIController_Events(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/ui/events", nil)
	require.NoError(t, err)
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var b strings.Builder
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if line == "\n" {
				return b.String()
			}
			b.WriteString(line)
		}
	}

	first := readEvent()
	assert.Contains(t, first, "event:books")
	assert.Contains(t, first, "Neuromancer")

	env.postForm(t, "/ui/search", url.Values{"q": {"dune"}})

	// Events arrive for every state change; wait for the one carrying the result.
	for {
		ev := readEvent()
		if strings.Contains(ev, "Dune") && !strings.Contains(ev, "Neuromancer") && !strings.Contains(ev, "Loading") {
			break
		}
	}
}

func TestUIController_DeleteBook(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/")

	r := env.postForm(t, "/ui/books/1/delete", url.Values{"confirm": {"true"}})

	require.Equal(t, http.StatusSeeOther, r.Code)
	assert.Equal(t, "/", r.Header.Get("Location"))
	assert.Equal(t, []string{"1"}, env.api.Deleted())
	assert.Equal(t, []string{"delete 1 Dune err=false"}, env.auditor.Events())

	list := env.get(t, "/ui/books")
	assert.Contains(t, list.Body, "Book deleted successfully")
	assert.NotContains(t, list.Body, "Dune")
	assert.Contains(t, list.Body, "Neuromancer")

	again := env.get(t, "/ui/books")
	assert.NotContains(t, again.Body, "Book deleted successfully", "flash is shown once")
}

func TestUIController_DeleteBook_HTMX(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/")

	r := env.postForm(t, "/ui/books/2/delete", url.Values{"confirm": {"true"}}, "HX-Request", "true")

	require.Equal(t, http.StatusOK, r.Code)
	assert.Contains(t, r.Body, "Book deleted successfully")
	assert.Contains(t, r.Body, "Dune")
	assert.NotContains(t, r.Body, "Neuromancer")
}

func TestUIController_DeleteBook_NotConfirmed(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/")

	r := env.postForm(t, "/ui/books/1/delete", url.Values{})

	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Empty(t, env.api.Deleted())
	assert.Empty(t, env.auditor.Events())
}

func TestUIController_DeleteBook_Failure(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/")
	env.api.setErrors(nil, nil, errors.New("upstream down"))

	r := env.postForm(t, "/ui/books/1/delete", url.Values{"confirm": {"true"}}, "HX-Request", "true")

	require.Equal(t, http.StatusOK, r.Code)
	assert.Contains(t, r.Body, "Failed to delete book")
	assert.Contains(t, r.Body, "Dune", "list is left untouched")
	assert.Equal(t, []string{"delete 1 Dune err=true"}, env.auditor.Events())
}
