package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"itsdumper/lib/download"
	"itsdumper/lib/manifest"
	"itsdumper/lib/scrapers/itslearning/core"
	"itsdumper/lib/scrapers/itslearning/crawl"
	"itsdumper/lib/scrapers/itslearning/resource"
	"itsdumper/lib/serviceutil"
	"itsdumper/lib/textutil"

	"github.com/antzucaro/matchr"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	dumpCourse       *string
	dumpOut          *string
	dumpSkipExisting *bool
	dumpConcurrency  *int
	dumpProgress     *bool
)

func init() {
	dumpCourse = dumpCmd.Flags().String("course", "", "Only dump the course whose title is closest to this.")
	dumpOut = dumpCmd.Flags().String("out", "", "Directory to mirror courses into, defaults to the current directory.")
	dumpSkipExisting = dumpCmd.Flags().Bool("skip-existing", false, "Leave files that already exist on disk untouched.")
	dumpConcurrency = dumpCmd.Flags().IntP("concurrency", "c", 0, "Number of parallel file downloads.")
	dumpProgress = dumpCmd.Flags().Bool("progress", false, "Render a progress bar per download.")
	rootCmd.AddCommand(dumpCmd)
}

// selectCourse picks the course whose title is most similar to the
// requested name. An exact match (ignoring case and whitespace) wins
// outright, otherwise the highest Jaro-Winkler similarity does.
func selectCourse(courses []core.Course, name string) (core.Course, error) {
	for _, c := range courses {
		if textutil.NormalizeName(c.Title) == textutil.NormalizeName(name) {
			return c, nil
		}
	}

	var mostSimilarity float64
	var mostSimilar core.Course

	for _, c := range courses {
		similarity := matchr.JaroWinkler(name, c.Title, false)
		if similarity > mostSimilarity {
			mostSimilarity = similarity
			mostSimilar = c
		}
	}

	if mostSimilarity == 0 {
		return core.Course{}, fmt.Errorf("no course resembles %q", name)
	}
	return mostSimilar, nil
}

var dumpCmd = &cobra.Command{
	Use:   "dump [--course <title>] [--out <dir>]",
	Short: "Mirrors the files of every course (or one course) to disk.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := readConfig()

		out := cfg.Out
		if *dumpOut != "" {
			out = *dumpOut
		}
		if out == "" {
			out = "."
		}
		skipExisting := cfg.SkipExisting || *dumpSkipExisting
		concurrency := cfg.Concurrency
		if *dumpConcurrency > 0 {
			concurrency = *dumpConcurrency
		}

		client := createClient(ctx, cfg)

		courses, err := client.Courses(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list courses", err)
		}
		if len(courses) == 0 {
			slog.InfoContext(ctx, "no courses visible to this account, nothing to dump")
			return
		}
		if *dumpCourse != "" {
			course, err := selectCourse(courses, *dumpCourse)
			if err != nil {
				serviceutil.Fatal("failed to select course", err)
			}
			courses = []core.Course{course}
		}

		if err := os.MkdirAll(out, 0755); err != nil {
			serviceutil.Fatal("failed to create output directory", err)
		}
		store, err := manifest.Open(filepath.Join(out, "manifest.db"))
		if err != nil {
			serviceutil.Fatal("failed to open manifest", err)
		}
		defer store.Close()

		materializer := download.NewMaterializer(download.Options{
			SkipExisting: skipExisting,
			Progress:     *dumpProgress,
			Store:        store,
		})
		resolver := resource.Resolver{
			Client: client,
			Sink:   materializer,
		}
		crawler := crawl.New(client, resolver, crawl.Options{
			Concurrency: concurrency,
		})

		for _, course := range courses {
			if ctx.Err() != nil {
				break
			}
			crawler.DumpCourse(ctx, course, out)
		}
		crawler.Wait()
		crawler.Close()

		entries, err := store.All(ctx)
		if err != nil {
			serviceutil.Fatal("failed to read manifest", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Path", "Bytes"})
		for _, e := range entries {
			t.AppendRow(table.Row{e.Path, e.Bytes})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
