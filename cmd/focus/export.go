package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MSghais/focus-afk-sub001/internal/export"
	"github.com/MSghais/focus-afk-sub001/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "maint",
	Short:   "Export the local database",
	Long: `Write every task, goal, session and the settings to stdout or a file.

Formats: json (default), jsonl, yaml, toml. With --output the format is taken
from the file extension unless --format is given. Only jsonl can be imported
back.

Examples:
  focus export > backup.json
  focus export -o backup.jsonl
  focus export --format yaml`,
	Args: cobra.NoArgs,
	Run:  runExport,
}

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "maint",
	Short:   "Import a jsonl export into an empty local database",
	Long: `Import a jsonl export into an empty local database.

Records get new local ids; ids assigned by the backend are kept, so a later
"focus sync" links them to the backend copies instead of creating duplicates.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	exportCmd.Flags().StringP("format", "f", "", "json, jsonl, yaml or toml")
	rootCmd.AddCommand(exportCmd, importCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	output, _ := cmd.Flags().GetString("output")
	formatFlag, _ := cmd.Flags().GetString("format")
	if formatFlag == "" && output != "" {
		formatFlag = filepath.Ext(output)
	}
	format, err := export.ParseFormat(formatFlag)
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, false)
	defer a.Close()

	snap, err := export.Collect(ctx, a.db, timeNow())
	if err != nil {
		a.Close()
		fatalf("%v", err)
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			a.Close()
			fatalf("failed to create %s: %v", output, err)
		}
		defer f.Close()
		w = f
	}

	if err := export.Write(w, snap, format); err != nil {
		a.Close()
		fatalf("%v", err)
	}
	if output != "" {
		fmt.Fprintf(os.Stderr, "%s Exported %d tasks, %d goals, %d sessions to %s\n",
			ui.RenderPass("✓"), len(snap.Tasks), len(snap.Goals), len(snap.Sessions), output)
	}
}

func runImport(cmd *cobra.Command, args []string) {
	// #nosec G304 - path from the command line
	f, err := os.Open(args[0])
	if err != nil {
		fatalf("failed to open %s: %v", args[0], err)
	}
	defer f.Close()

	snap, err := export.ReadJSONL(f)
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := commandContext()
	defer stop()
	a := mustOpenApp(ctx, false)
	defer a.Close()

	res, err := export.Import(ctx, a.db, snap)
	if err != nil {
		a.Close()
		if errors.Is(err, export.ErrNotEmpty) {
			fatalf("the local database at %s already has data; import needs an empty one", a.db.Path())
		}
		fatalf("%v", err)
	}

	if jsonOutput {
		printJSON(res)
		return
	}
	fmt.Printf("%s Imported %d tasks, %d goals, %d sessions\n", ui.RenderPass("✓"), res.Tasks, res.Goals, res.Sessions)
	if a.signedIn() {
		fmt.Println("   Run \"focus sync\" to send them to the backend.")
	}
}
