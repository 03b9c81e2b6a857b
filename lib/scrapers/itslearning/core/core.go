package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"itsdumper/lib/htmlutil"
	"itsdumper/lib/restyutil"
	"itsdumper/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Client talks to one school's itslearning portal. Redirects are never
// followed automatically: the resolver reads Location headers itself, and
// cookies live in the explicit Session rather than a jar.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
	Session *Session
}

type ClientOptions struct {
	// school tenant, i.e. the <school> of https://<school>.itslearning.com
	School string
	// overrides School when set, used by tests to point at a fixture server
	BaseUrl string
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	rawUrl := opts.BaseUrl
	if rawUrl == "" {
		rawUrl = fmt.Sprintf("https://%s.itslearning.com", opts.School)
	}
	baseUrl, err := url.Parse(rawUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(rawUrl)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.NoRedirectPolicy())
	client.SetTimeout(time.Second * 30)

	// either middleware starts one span per request, stacking them
	// would double-End
	if restyInstrumentOutput != nil {
		restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)
	} else {
		telemetry.InstrumentResty(client, "scrapers/itslearning/http")
	}

	c := &Client{
		BaseUrl: baseUrl,
		Http:    client,
		Session: NewSession(),
	}
	return c, nil
}

// ResolveUrl turns a possibly-relative page reference into an absolute
// URL within the portal domain.
func (c *Client) ResolveUrl(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.BaseUrl.ResolveReference(parsed).String()
}

// Get performs an authenticated GET without following redirects and
// without checking the response status.
func (c *Client) Get(ctx context.Context, rawUrl, cookieHeader string) (*resty.Response, error) {
	req := c.Http.R().SetContext(ctx)
	if cookieHeader != "" {
		req.SetHeader("Cookie", cookieHeader)
	}
	res, err := req.Get(rawUrl)
	// resty reports the stopped redirect as an error even though the
	// response carrying Location and Set-Cookie is perfectly usable
	if err != nil && res != nil && res.StatusCode() >= 300 && res.StatusCode() < 400 {
		return res, nil
	}
	return res, err
}

// GetDocument fetches a page and parses it, converting any non-2xx
// status into a StatusError.
func (c *Client) GetDocument(ctx context.Context, rawUrl, cookieHeader string) (*goquery.Document, error) {
	ctx, span := tracer.Start(ctx, "GetDocument")
	defer span.End()
	span.SetAttributes(attribute.String("url", rawUrl))

	res, err := c.Get(ctx, rawUrl, cookieHeader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}
	if !res.IsSuccess() {
		err := &StatusError{URL: rawUrl, Status: res.StatusCode()}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return nil, err
	}
	doc, err := htmlutil.ParseDocument(res.Body())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}
	return doc, nil
}

// PortalCookies renders the Cookie header for the portal domain.
func (c *Client) PortalCookies() string {
	return c.Session.Header(c.BaseUrl.Hostname())
}

// Login authenticates with the portal's native form login. It fetches
// the login page, carries its hidden ASP.NET state fields into the
// credential POST and requires a session cookie in return.
func (c *Client) Login(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	host := c.BaseUrl.Hostname()

	res, err := c.Get(ctx, "/index.aspx", "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return err
	}
	if !res.IsSuccess() {
		return &StatusError{URL: c.ResolveUrl("/index.aspx"), Status: res.StatusCode()}
	}
	c.Session.Merge(host, res.Header().Values("Set-Cookie"))

	doc, err := htmlutil.ParseDocument(res.Body())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse login page html")
		return err
	}

	form := map[string]string{
		"ctl00$ContentPlaceHolder1$Username$input": username,
		"ctl00$ContentPlaceHolder1$Password$input": password,
		"ctl00$ContentPlaceHolder1$nativeLoginButton": "",
	}
	for _, field := range []string{"__VIEWSTATE", "__VIEWSTATEGENERATOR", "__EVENTVALIDATION"} {
		value, ok := htmlutil.Attr(doc, fmt.Sprintf("input[name=%s]", field), "value")
		if ok {
			form[field] = value
		}
	}

	loginReq := c.Http.R().
		SetContext(ctx).
		SetFormData(form)
	if cookies := c.Session.Header(host); cookies != "" {
		loginReq.SetHeader("Cookie", cookies)
	}
	res, err = loginReq.Post("/index.aspx")
	if err != nil && (res == nil || res.StatusCode() < 300 || res.StatusCode() >= 400) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	c.Session.Merge(host, res.Header().Values("Set-Cookie"))
	if _, ok := c.Session.Get(host, SessionIdCookie); !ok {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return LoginFailed
	}
	return nil
}

// LoginWithSessionId seeds the session with a pre-obtained portal
// session id instead of posting credentials.
func (c *Client) LoginWithSessionId(sessionId string) {
	c.Session.Merge(c.BaseUrl.Hostname(), []string{
		fmt.Sprintf("%s=%s", SessionIdCookie, strings.TrimSpace(sessionId)),
	})
}
