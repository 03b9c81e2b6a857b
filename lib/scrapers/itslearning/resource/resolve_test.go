package resource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"itsdumper/lib/download"
	"itsdumper/lib/scrapers/itslearning/core"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	downloads []download.Download
}

func (s *recordingSink) Fetch(ctx context.Context, dl download.Download) error {
	s.downloads = append(s.downloads, dl)
	return nil
}

// fixture portal serving the whole hop chain from one host. The page
// flavor served by the platform hop is keyed off the element id.
func newPortalServer(t *testing.T) *httptest.Server {
	var srv *httptest.Server
	mux := http.NewServeMux()

	mux.HandleFunc("GET /LearningToolElement/ViewLearningToolElement.aspx", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("LearningToolElementId")
		fmt.Fprintf(w, `
<html><body>
<span id="ctl00_PageHeader_TT">Quarterly Report %s</span>
<iframe id="ctl00_ContentPlaceHolder_ExtensionIframe" src="%s/lti/launch?id=%s&amp;lang=en"></iframe>
</body></html>`, id, srv.URL, id)
	})

	mux.HandleFunc("GET /lti/launch", func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Cookie"), "handoff hop must carry no cookies")
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "platform-sess"})
		http.SetCookie(w, &http.Cookie{Name: "tracking", Value: "1"})
		w.Header().Set("Location", "/platform/resource?id="+r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusFound)
	})

	mux.HandleFunc("GET /platform/resource", func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.Header.Get("Cookie"), "ASP.NET_SessionId=platform-sess")
		switch r.URL.Query().Get("id") {
		case "101":
			fmt.Fprint(w, `
<html><body>
<a id="ctl00_ctl00_MainFormContent_DownloadLinkWrapper_DownloadLink" href="/x&amp;y" Download="report.pdf">Download file</a>
</body></html>`)
		case "202":
			fmt.Fprint(w, `
<html><body>
<iframe id="ctl00_ctl00_MainFormContent_ViewerFrame" src="/preview/202"></iframe>
</body></html>`)
		default:
			fmt.Fprint(w, `<html><body><p>This element is a survey.</p></body></html>`)
		}
	})

	mux.HandleFunc("GET /preview/202", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, previewScriptFixture)
	})

	srv = httptest.NewServer(mux)
	return srv
}

func newResolver(t *testing.T, srv *httptest.Server, sink Sink) (Resolver, *core.Session) {
	client, err := core.NewClient(context.Background(), core.ClientOptions{BaseUrl: srv.URL})
	require.NoError(t, err)

	session := core.NewSession()
	session.Merge(client.BaseUrl.Hostname(), []string{"ASP.NET_SessionId=portal-sess"})

	return Resolver{
		Client:       client,
		Sink:         sink,
		ResourceBase: srv.URL,
	}, session
}

func TestResolveDirectDownload(t *testing.T) {
	srv := newPortalServer(t)
	defer srv.Close()

	sink := &recordingSink{}
	resolver, session := newResolver(t, srv, sink)

	err := resolver.Resolve(context.Background(), "101", session, "out/Course A", false)
	require.NoError(t, err)
	require.Len(t, sink.downloads, 1)

	dl := sink.downloads[0]
	// entities decoded exactly once
	require.True(t, strings.HasSuffix(dl.Url, "/x&y"), "got url %q", dl.Url)
	require.Equal(t, "report.pdf", dl.Name)
	require.Equal(t, "out/Course A", dl.Dir)
	require.Contains(t, dl.CookieHeader, "ASP.NET_SessionId=platform-sess")
}

func TestResolveOfficePreview(t *testing.T) {
	srv := newPortalServer(t)
	defer srv.Close()

	sink := &recordingSink{}
	resolver, session := newResolver(t, srv, sink)

	err := resolver.Resolve(context.Background(), "202", session, "out/Course A", false)
	require.NoError(t, err)
	require.Len(t, sink.downloads, 1)

	dl := sink.downloads[0]
	require.Equal(
		t,
		"https://resource.itslearning.com/wopi/files/8842/contents?access_token=tok-eyJ0eXAi",
		dl.Url,
	)
	// the access token is the only credential
	require.Empty(t, dl.CookieHeader)
	// file name comes from the view page title
	require.Equal(t, "Quarterly Report 202", dl.Name)
}

func TestResolveDisambiguatesDirectDownloadName(t *testing.T) {
	srv := newPortalServer(t)
	defer srv.Close()

	sink := &recordingSink{}
	resolver, session := newResolver(t, srv, sink)

	// two same-named siblings both carrying the same attachment name
	// must land on distinct paths
	err := resolver.Resolve(context.Background(), "101", session, "out", true)
	require.NoError(t, err)
	require.Len(t, sink.downloads, 1)
	require.Equal(t, "report [101].pdf", sink.downloads[0].Name)
}

func TestResolveDisambiguatesFileName(t *testing.T) {
	srv := newPortalServer(t)
	defer srv.Close()

	sink := &recordingSink{}
	resolver, session := newResolver(t, srv, sink)

	err := resolver.Resolve(context.Background(), "202", session, "out", true)
	require.NoError(t, err)
	require.Len(t, sink.downloads, 1)
	require.Equal(t, "Quarterly Report 202 [202]", sink.downloads[0].Name)
}

func TestResolveUnsupportedResource(t *testing.T) {
	srv := newPortalServer(t)
	defer srv.Close()

	sink := &recordingSink{}
	resolver, session := newResolver(t, srv, sink)

	err := resolver.Resolve(context.Background(), "999", session, "out", false)
	require.ErrorIs(t, err, ErrUnsupportedResource)
	require.Empty(t, sink.downloads)
}

func TestResolveViewHopStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	resolver, session := newResolver(t, srv, sink)

	err := resolver.Resolve(context.Background(), "101", session, "out", false)
	var statusErr *core.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Empty(t, sink.downloads)
}
