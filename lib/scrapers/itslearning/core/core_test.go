package core

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const loginPage = `
<html><body><form method="post" action="/index.aspx">
<input type="hidden" name="__VIEWSTATE" value="viewstate-blob" />
<input type="hidden" name="__EVENTVALIDATION" value="eventvalidation-blob" />
<input name="ctl00$ContentPlaceHolder1$Username$input" />
<input name="ctl00$ContentPlaceHolder1$Password$input" type="password" />
</form></body></html>`

func newLoginServer(t *testing.T, password string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /index.aspx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, loginPage)
	})
	mux.HandleFunc("POST /index.aspx", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "viewstate-blob", r.PostForm.Get("__VIEWSTATE"))
		if r.PostForm.Get("ctl00$ContentPlaceHolder1$Password$input") != password {
			fmt.Fprint(w, loginPage)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "sess-1"})
		w.Header().Set("Location", "/DashboardMenu.aspx")
		w.WriteHeader(http.StatusFound)
	})
	return httptest.NewServer(mux)
}

func TestLogin(t *testing.T) {
	srv := newLoginServer(t, "hunter2")
	defer srv.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: srv.URL})
	require.NoError(t, err)

	err = client.Login(context.Background(), "student", "hunter2")
	require.NoError(t, err)

	sid, ok := client.Session.Get(client.BaseUrl.Hostname(), SessionIdCookie)
	require.True(t, ok)
	require.Equal(t, "sess-1", sid)
}

func TestLoginBadCredentials(t *testing.T) {
	srv := newLoginServer(t, "hunter2")
	defer srv.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: srv.URL})
	require.NoError(t, err)

	err = client.Login(context.Background(), "student", "wrong")
	require.ErrorIs(t, err, LoginFailed)
}

func TestCourses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /Course/AllCourses.aspx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `
<html><body><table>
<tr><td><a class="ccl-iconlink" href="/main.aspx?CourseID=101">Mathematics</a></td></tr>
<tr><td><a class="ccl-iconlink" href="/main.aspx?CourseID=101">Mathematics</a></td></tr>
<tr><td><a class="ccl-iconlink" href="/main.aspx?CourseID=202">History &amp; Society</a></td></tr>
<tr><td><a class="ccl-iconlink" href="/Help.aspx">Help</a></td></tr>
</table></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: srv.URL})
	require.NoError(t, err)

	courses, err := client.Courses(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Course{
		{Title: "Mathematics", Id: "101"},
		{Title: "History & Society", Id: "202"},
	}, courses)

	require.Equal(t, "/ContentArea/ContentArea.aspx?LocationID=101&LocationType=1", courses[0].RootFolderUrl())
}

func TestCoursesNoneEnrolled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /Course/AllCourses.aspx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `
<html><body>
<a class="ccl-iconlink" href="/Help.aspx">Help</a>
<p>You are not enrolled in any courses.</p>
</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: srv.URL})
	require.NoError(t, err)

	courses, err := client.Courses(context.Background())
	require.NoError(t, err)
	require.Empty(t, courses)
}

func TestCoursesMalformedPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /Course/AllCourses.aspx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>maintenance</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: srv.URL})
	require.NoError(t, err)

	_, err = client.Courses(context.Background())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestGetDocumentStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: srv.URL})
	require.NoError(t, err)

	_, err = client.GetDocument(context.Background(), "/Folder/processfolder.aspx?FolderID=1", "")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusForbidden, statusErr.Status)
}
