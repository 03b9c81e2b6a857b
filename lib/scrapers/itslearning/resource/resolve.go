// Package resource resolves one file-reference element to its true
// binary payload. Every file walks the same hop chain: the portal's
// element view page, a cross-domain handoff that issues a new session,
// the platform's resource page and finally one of two delivery
// mechanisms (a direct download anchor or an office preview frame).
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"itsdumper/lib/download"
	"itsdumper/lib/htmlutil"
	"itsdumper/lib/scrapers/itslearning/core"
	"itsdumper/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/itslearning/resource")

// ErrUnsupportedResource marks element kinds the dumper knows it cannot
// download (external links, quizzes, surveys). Expected and non-fatal.
var ErrUnsupportedResource = errors.New("resource type unsupported")

const DefaultResourceBase = "https://resource.itslearning.com"

const (
	pageTitleSelector      = "#ctl00_PageHeader_TT"
	extensionFrameSelector = "iframe#ctl00_ContentPlaceHolder_ExtensionIframe"
	downloadAnchorSelector = "a#ctl00_ctl00_MainFormContent_DownloadLinkWrapper_DownloadLink"
	previewFrameSelector   = "iframe#ctl00_ctl00_MainFormContent_ViewerFrame"
)

// Sink consumes resolved downloads. *download.Materializer in
// production, a recorder in tests.
type Sink interface {
	Fetch(ctx context.Context, dl download.Download) error
}

type Resolver struct {
	Client *core.Client
	Sink   Sink
	// base URL prefixed onto delivery hrefs, overridable for tests
	ResourceBase string
}

func (r Resolver) resourceBase() string {
	if r.ResourceBase != "" {
		return r.ResourceBase
	}
	return DefaultResourceBase
}

// suffixBeforeExt folds the element id into an attachment name ahead of
// its extension, so "report.pdf" becomes "report [101].pdf" and stays
// openable.
func suffixBeforeExt(name, elementId string) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s [%s]%s", strings.TrimSuffix(name, ext), elementId, ext)
}

func hostOf(rawUrl string) string {
	parsed, err := url.Parse(rawUrl)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// Resolve walks the hop chain for a single element and hands the result
// to the sink. Hops are strictly sequential, there are no retries and a
// failed hop aborts only this one file. With disambiguate set the
// element id is folded into the display-derived file name so same-named
// siblings land on distinct paths.
func (r Resolver) Resolve(ctx context.Context, elementId string, session *core.Session, targetDir string, disambiguate bool) error {
	ctx, span := tracer.Start(ctx, "resolver:Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("element_id", elementId))

	fileName, frameUrl, err := r.viewHop(ctx, elementId, session)
	if err != nil {
		return err
	}
	if disambiguate {
		fileName = fmt.Sprintf("%s [%s]", fileName, elementId)
	}
	platformUrl, err := r.handoffHop(ctx, frameUrl, session)
	if err != nil {
		return err
	}
	doc, err := r.platformHop(ctx, platformUrl, session)
	if err != nil {
		return err
	}

	if href, ok := htmlutil.Attr(doc, downloadAnchorSelector, "href"); ok {
		name, ok := htmlutil.Attr(doc, downloadAnchorSelector, "download")
		if !ok {
			return &core.ParseError{URL: platformUrl, Missing: "Download attribute on download anchor"}
		}
		if disambiguate {
			name = suffixBeforeExt(name, elementId)
		}
		return r.Sink.Fetch(ctx, download.Download{
			Url:          r.resourceBase() + href,
			CookieHeader: session.Header(hostOf(r.resourceBase())),
			Dir:          targetDir,
			Name:         name,
		})
	}

	if src, ok := htmlutil.Attr(doc, previewFrameSelector, "src"); ok {
		return r.previewHop(ctx, src, fileName, session, targetDir)
	}

	slog.InfoContext(ctx, "resource type unsupported", "element_id", elementId, "name", fileName)
	span.SetStatus(codes.Ok, "unsupported resource kind")
	return ErrUnsupportedResource
}

// viewHop fetches the element's view page on the portal domain and pulls
// out the display file name and the embedded extension frame URL.
func (r Resolver) viewHop(ctx context.Context, elementId string, session *core.Session) (fileName, frameUrl string, err error) {
	viewUrl := fmt.Sprintf(
		"/LearningToolElement/ViewLearningToolElement.aspx?LearningToolElementId=%s",
		elementId,
	)
	doc, err := r.Client.GetDocument(ctx, viewUrl, session.Header(r.Client.BaseUrl.Hostname()))
	if err != nil {
		return "", "", err
	}

	title, ok := htmlutil.Text(doc, pageTitleSelector)
	if !ok {
		return "", "", &core.ParseError{URL: r.Client.ResolveUrl(viewUrl), Missing: "page title"}
	}
	frameUrl, ok = htmlutil.Attr(doc, extensionFrameSelector, "src")
	if !ok {
		return "", "", &core.ParseError{URL: r.Client.ResolveUrl(viewUrl), Missing: "extension frame"}
	}
	return textutil.Sanitize(title), frameUrl, nil
}

// handoffHop calls the frame URL with no cookies at all. The endpoint
// answers with the next domain's session cookies and a redirect it
// expects a browser to follow; we capture both instead.
func (r Resolver) handoffHop(ctx context.Context, frameUrl string, session *core.Session) (string, error) {
	res, err := r.Client.Get(ctx, frameUrl, "")
	if err != nil {
		return "", err
	}
	if res.StatusCode() < 300 || res.StatusCode() >= 400 {
		return "", &core.StatusError{URL: frameUrl, Status: res.StatusCode()}
	}
	location := res.Header().Get("Location")
	if location == "" {
		return "", &core.ParseError{URL: frameUrl, Missing: "Location header"}
	}

	session.Merge(hostOf(frameUrl), res.Header().Values("Set-Cookie"))

	base, err := url.Parse(frameUrl)
	if err != nil {
		return location, nil
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", &core.ParseError{URL: frameUrl, Missing: "parseable Location header"}
	}
	return base.ResolveReference(ref).String(), nil
}

// platformHop fetches the redirect target with the freshly merged
// cookies and parses the resource page it serves.
func (r Resolver) platformHop(ctx context.Context, platformUrl string, session *core.Session) (*goquery.Document, error) {
	host := hostOf(platformUrl)
	res, err := r.Client.Get(ctx, platformUrl, session.Header(host))
	if err != nil {
		return nil, err
	}
	if !res.IsSuccess() {
		return nil, &core.StatusError{URL: platformUrl, Status: res.StatusCode()}
	}
	session.MergeFiltered(host, res.Header().Values("Set-Cookie"), core.SessionIdCookie)

	return htmlutil.ParseDocument(res.Body())
}

// previewHop handles office documents that the platform only exposes
// through its preview viewer: the preview page embeds the WOPI form
// target and access token the real content endpoint wants.
func (r Resolver) previewHop(ctx context.Context, frameSrc, fileName string, session *core.Session, targetDir string) error {
	previewUrl := r.resourceBase() + frameSrc
	res, err := r.Client.Get(ctx, previewUrl, session.Header(hostOf(r.resourceBase())))
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		return &core.StatusError{URL: previewUrl, Status: res.StatusCode()}
	}

	preview, err := parseOfficePreview(string(res.Body()))
	if err != nil {
		return &core.ParseError{URL: previewUrl, Missing: err.Error()}
	}
	contentUrl, err := preview.DownloadUrl()
	if err != nil {
		return &core.ParseError{URL: previewUrl, Missing: err.Error()}
	}

	// the access token is the sole credential here, no cookies needed
	return r.Sink.Fetch(ctx, download.Download{
		Url:  contentUrl,
		Dir:  targetDir,
		Name: fileName,
	})
}
