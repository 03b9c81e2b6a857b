package core

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"itsdumper/lib/htmlutil"

	"go.opentelemetry.io/otel/codes"
)

// Course is one entry of the portal's course list. Its id seeds the root
// folder URL for traversal.
type Course struct {
	Title string
	Id    string
}

// RootFolderUrl points at the course's file content area, which renders
// with the same page schema as any other folder.
func (c Course) RootFolderUrl() string {
	return fmt.Sprintf("/ContentArea/ContentArea.aspx?LocationID=%s&LocationType=1", c.Id)
}

var courseIdRegex = regexp.MustCompile(`CourseI[dD]=(\d+)`)

// Courses lists every course visible to the logged-in user.
func (c *Client) Courses(ctx context.Context) ([]Course, error) {
	ctx, span := tracer.Start(ctx, "client:Courses")
	defer span.End()

	doc, err := c.GetDocument(ctx, "/Course/AllCourses.aspx", c.PortalCookies())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch course list")
		return nil, err
	}

	anchors := htmlutil.GetAnchors(ctx, doc.Find("a.ccl-iconlink"))
	// a page without any list anchors means the schema drifted, a page
	// whose anchors just aren't courses is an account with none
	if len(anchors) == 0 {
		return nil, &ParseError{
			URL:     c.ResolveUrl("/Course/AllCourses.aspx"),
			Missing: "course list anchors",
		}
	}

	seen := map[string]bool{}
	var courses []Course
	for _, a := range anchors {
		href, err := url.QueryUnescape(a.Href)
		if err != nil {
			href = a.Href
		}
		groups := courseIdRegex.FindStringSubmatch(href)
		if len(groups) < 2 {
			continue
		}
		id := groups[1]
		if seen[id] || a.Name == "" {
			continue
		}
		seen[id] = true
		courses = append(courses, Course{Title: a.Name, Id: id})
	}

	return courses, nil
}
