package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"itsdumper/lib/scrapers/itslearning/core"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestFetchWritesFile(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		fmt.Fprint(w, "payload-bytes")
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	m := NewMaterializer(Options{Fs: fs})

	err := m.Fetch(context.Background(), Download{
		Url:          srv.URL + "/file",
		CookieHeader: "ASP.NET_SessionId=abc",
		Dir:          filepath.Join("root", "Course A"),
		Name:         "notes.pdf",
	})
	require.NoError(t, err)
	require.Equal(t, "ASP.NET_SessionId=abc", gotCookie)

	contents, err := afero.ReadFile(fs, filepath.Join("root", "Course A", "notes.pdf"))
	require.NoError(t, err)
	require.Equal(t, "payload-bytes", string(contents))

	// no .part leftovers
	infos, err := afero.ReadDir(fs, filepath.Join("root", "Course A"))
	require.NoError(t, err)
	require.Len(t, infos, 1)
}

func TestFetchSkipExisting(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, "new-contents")
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	target := filepath.Join("root", "notes.pdf")
	require.NoError(t, afero.WriteFile(fs, target, []byte("old-contents"), 0644))

	m := NewMaterializer(Options{Fs: fs, SkipExisting: true})
	err := m.Fetch(context.Background(), Download{
		Url:  srv.URL + "/file",
		Dir:  "root",
		Name: "notes.pdf",
	})
	require.NoError(t, err)
	require.Zero(t, requests)

	contents, err := afero.ReadFile(fs, target)
	require.NoError(t, err)
	require.Equal(t, "old-contents", string(contents))
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	m := NewMaterializer(Options{Fs: fs})
	err := m.Fetch(context.Background(), Download{
		Url:  srv.URL + "/gone",
		Dir:  "root",
		Name: "missing.pdf",
	})

	var statusErr *core.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.Status)

	exists, err := afero.Exists(fs, filepath.Join("root", "missing.pdf"))
	require.NoError(t, err)
	require.False(t, exists)
}
