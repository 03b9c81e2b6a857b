// Package download writes resolved payloads to local storage.
package download

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"itsdumper/lib/manifest"
	"itsdumper/lib/scrapers/itslearning/core"
	"itsdumper/lib/telemetry"

	"github.com/cheggaaa/pb/v3"
	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("itsdumper.lib.download")

// Download is a fully resolved payload: where to get it, what credential
// to present and where it lands on disk. Consumed exactly once.
type Download struct {
	Url          string
	CookieHeader string
	Dir          string
	Name         string
}

type Materializer struct {
	fs           afero.Fs
	http         *resty.Client
	skipExisting bool
	progress     bool
	store        *manifest.Store
}

type Options struct {
	// defaults to the real filesystem
	Fs afero.Fs
	// leave files that already exist on disk untouched
	SkipExisting bool
	// render a terminal progress bar per file
	Progress bool
	// optional download manifest
	Store *manifest.Store
}

func NewMaterializer(opts Options) *Materializer {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	client := resty.New()
	// large payloads stream for as long as they need to, the context
	// handles cancellation
	client.SetTimeout(0)
	telemetry.InstrumentResty(client, "download/http")

	return &Materializer{
		fs:           fs,
		http:         client,
		skipExisting: opts.SkipExisting,
		progress:     opts.Progress,
		store:        opts.Store,
	}
}

// Fetch streams a resolved download to disk. The payload is written next
// to its target under a random .part name and renamed into place only
// once the stream completed, so an interrupted run never leaves a
// truncated file behind under the real name.
func (m *Materializer) Fetch(ctx context.Context, dl Download) error {
	ctx, span := tracer.Start(ctx, "materializer:Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("url", dl.Url),
		attribute.String("name", dl.Name),
	)

	target := filepath.Join(dl.Dir, dl.Name)

	if m.skipExisting {
		exists, err := afero.Exists(m.fs, target)
		if err == nil && exists {
			slog.InfoContext(ctx, "file already exists, skipping", "path", target)
			span.SetStatus(codes.Ok, "skipped")
			return nil
		}
	}

	err := m.fs.MkdirAll(dl.Dir, 0755)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create target directory")
		return err
	}

	req := m.http.R().SetContext(ctx).SetDoNotParseResponse(true)
	if dl.CookieHeader != "" {
		req.SetHeader("Cookie", dl.CookieHeader)
	}
	res, err := req.Get(dl.Url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch payload")
		return err
	}
	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		err := &core.StatusError{URL: dl.Url, Status: res.StatusCode()}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return err
	}

	suffix, err := random.String(8)
	if err != nil {
		suffix = "tmp"
	}
	part := target + "." + suffix + ".part"

	f, err := m.fs.Create(part)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create part file")
		return err
	}

	var out io.Writer = f
	var bar *pb.ProgressBar
	if m.progress && res.RawResponse.ContentLength > 0 {
		bar = pb.Full.Start64(res.RawResponse.ContentLength)
		out = bar.NewProxyWriter(f)
	}

	written, err := io.Copy(out, body)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		f.Close()
		m.fs.Remove(part)
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream interrupted")
		return err
	}
	err = f.Close()
	if err != nil {
		m.fs.Remove(part)
		return err
	}
	err = m.fs.Rename(part, target)
	if err != nil {
		m.fs.Remove(part)
		return err
	}

	if m.store != nil {
		err = m.store.Note(ctx, manifest.Entry{
			Path:         target,
			Url:          dl.Url,
			Bytes:        written,
			DownloadedAt: time.Now(),
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to note download in manifest", "path", target, "err", err)
		}
	}

	slog.InfoContext(ctx, "downloaded file", "path", target, "bytes", written)
	return nil
}
