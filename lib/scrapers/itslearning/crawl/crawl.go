// Package crawl walks a course's folder tree depth-first and feeds every
// file entry it finds into a bounded pool of resolution workers.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"itsdumper/lib/htmlutil"
	"itsdumper/lib/scrapers/itslearning/core"
	"itsdumper/lib/scrapers/itslearning/resource"
	"itsdumper/lib/textutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/itslearning/crawl")

const (
	pageTitleSelector = "#ctl00_PageHeader_TT"
	entrySelector     = "a.ccl-iconlink"

	folderPrefix  = "/Folder"
	elementPrefix = "/LearningToolElement"
)

var elementIdRegex = regexp.MustCompile(`LearningToolElementId=(\d+)`)

// Resolver is the single-file resolution pipeline the crawler dispatches
// to. Implemented by resource.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, elementId string, session *core.Session, targetDir string, disambiguate bool) error
}

type task struct {
	ctx          context.Context
	elementId    string
	session      *core.Session
	dir          string
	disambiguate bool
}

type Crawler struct {
	client   *core.Client
	resolver Resolver
	tasks    chan task
	wg       sync.WaitGroup
}

type Options struct {
	// number of resolution workers, defaults to 4. the task queue is
	// sized to the worker count so folder traversal backpressures
	// instead of buffering a whole course of file references.
	Concurrency int
}

func New(client *core.Client, resolver Resolver, opts Options) *Crawler {
	n := opts.Concurrency
	if n <= 0 {
		n = 4
	}
	c := &Crawler{
		client:   client,
		resolver: resolver,
		tasks:    make(chan task, n),
	}
	for i := 0; i < n; i++ {
		go c.worker()
	}
	return c
}

func (c *Crawler) worker() {
	for t := range c.tasks {
		err := c.resolver.Resolve(t.ctx, t.elementId, t.session, t.dir, t.disambiguate)
		if err != nil && !errors.Is(err, resource.ErrUnsupportedResource) {
			slog.WarnContext(t.ctx, "failed to resolve file", "element_id", t.elementId, "err", err)
		}
		c.wg.Done()
	}
}

func (c *Crawler) submit(ctx context.Context, elementId, dir string, disambiguate bool) {
	c.wg.Add(1)
	c.tasks <- task{
		ctx:          ctx,
		elementId:    elementId,
		session:      c.client.Session.Clone(),
		dir:          dir,
		disambiguate: disambiguate,
	}
}

// Wait blocks until every submitted file resolution has finished.
func (c *Crawler) Wait() {
	c.wg.Wait()
}

// Close waits for outstanding resolutions and stops the workers. The
// crawler cannot be used afterwards.
func (c *Crawler) Close() {
	c.wg.Wait()
	close(c.tasks)
}

// DumpCourse mirrors a course's whole file tree under root.
func (c *Crawler) DumpCourse(ctx context.Context, course core.Course, root string) {
	ctx, span := tracer.Start(ctx, "crawler:DumpCourse")
	defer span.End()
	span.SetAttributes(
		attribute.String("course_id", course.Id),
		attribute.String("title", course.Title),
	)

	slog.InfoContext(ctx, "dumping course", "id", course.Id, "title", course.Title)
	c.Traverse(ctx, course.RootFolderUrl(), filepath.Join(root, textutil.Sanitize(course.Title)), false)
}

func folderId(folderUrl string) string {
	parsed, err := url.Parse(folderUrl)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("FolderID")
}

// Traverse recursively mirrors one folder subtree. Failures inside this
// subtree are contained: siblings and the rest of the run continue.
func (c *Crawler) Traverse(ctx context.Context, folderRef, parentDir string, disambiguate bool) {
	ctx, span := tracer.Start(ctx, "crawler:Traverse")
	defer span.End()

	folderUrl := c.client.ResolveUrl(folderRef)
	span.SetAttributes(attribute.String("url", folderUrl))

	doc, err := c.client.GetDocument(ctx, folderUrl, c.client.PortalCookies())
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch folder page, skipping subtree", "url", folderUrl, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch folder page")
		return
	}

	title, ok := htmlutil.Text(doc, pageTitleSelector)
	if !ok {
		slog.WarnContext(ctx, "folder page has no title, skipping subtree", "url", folderUrl)
		span.SetStatus(codes.Error, "missing folder title")
		return
	}
	name := textutil.Sanitize(title)
	if disambiguate {
		if id := folderId(folderUrl); id != "" {
			name = fmt.Sprintf("%s [%s]", name, id)
		}
	}
	dir := filepath.Join(parentDir, name)

	entries := htmlutil.GetAnchors(ctx, doc.Find(entrySelector))
	if len(entries) == 0 {
		slog.DebugContext(ctx, "folder is empty", "url", folderUrl)
		return
	}

	nameCounts := map[string]int{}
	for _, entry := range entries {
		nameCounts[entry.Name]++
	}

	for _, entry := range entries {
		duplicated := nameCounts[entry.Name] > 1
		switch {
		case strings.HasPrefix(entry.Href, folderPrefix):
			c.Traverse(ctx, entry.Href, dir, duplicated)
		case strings.HasPrefix(entry.Href, elementPrefix):
			groups := elementIdRegex.FindStringSubmatch(entry.Href)
			if len(groups) < 2 {
				slog.WarnContext(ctx, "file entry without element id", "name", entry.Name, "href", entry.Href)
				continue
			}
			c.submit(ctx, groups[1], dir, duplicated)
		default:
			slog.WarnContext(ctx, "unknown entry kind, skipping", "name", entry.Name, "href", entry.Href)
		}
	}
}
