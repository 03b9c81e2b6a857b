package commands

import (
	"os"

	"itsdumper/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(coursesCmd)
}

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "Lists the courses visible to the configured account.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := createClient(ctx, readConfig())

		courses, err := client.Courses(ctx)
		if err != nil {
			serviceutil.Fatal("failed to list courses", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Title"})

		for _, c := range courses {
			t.AppendRow(table.Row{c.Id, c.Title})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
