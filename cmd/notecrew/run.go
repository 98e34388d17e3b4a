package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	agents "github.com/hrygo/notecrew/ai/agents"
	"github.com/hrygo/notecrew/server"
	"github.com/hrygo/notecrew/server/service/note"
	"github.com/hrygo/notecrew/server/service/upload"
)

var runFlags struct {
	idea    string
	images  []string
	out     string
	noStore bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate one note from local images and print the report",
	Example: heredoc.Doc(`
		notecrew run --idea "周末去杭州拍了一组秋天的照片" --image a.jpg --image b.png
		notecrew run --idea "新买的咖啡机测评" --image ./shots/1.jpg --out report.md --no-store
	`),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, closeLog, err := loadProfile()
		if err != nil {
			return err
		}
		defer closeLog.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), terminationSignals...)
		defer stop()

		var runs note.RunRecorder
		if !runFlags.noStore {
			storeInstance, err := openStore(ctx, instanceProfile)
			if err != nil {
				return err
			}
			defer storeInstance.Close()
			runs = storeInstance
		}

		rt, err := server.NewRuntime(instanceProfile, runs, nil)
		if err != nil {
			return err
		}

		sources, closeSources, err := openImageFiles(runFlags.images)
		if err != nil {
			return err
		}
		defer closeSources()

		out, err := rt.Notes.Generate(ctx, runFlags.idea, sources)
		if err != nil {
			return errors.New(agents.FormatError(err))
		}

		if runFlags.out != "" {
			if err := os.WriteFile(runFlags.out, []byte(out.Report), 0o644); err != nil {
				return errors.Wrap(err, "failed to write report")
			}
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), out.Report)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d/%d images processed in %s\n",
			out.RunID, out.ProcessedImages, out.TotalImages, out.Duration.Round(time.Millisecond))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.idea, "idea", "", "the idea behind the note")
	runCmd.Flags().StringArrayVar(&runFlags.images, "image", nil, "image file, repeat for several images")
	runCmd.Flags().StringVarP(&runFlags.out, "out", "o", "", "write the report to this file instead of stdout")
	runCmd.Flags().BoolVar(&runFlags.noStore, "no-store", false, "do not record the run in the database")
	_ = runCmd.MarkFlagRequired("idea")
	_ = runCmd.MarkFlagRequired("image")
}

// openImageFiles opens every path. The returned func closes them all.
func openImageFiles(paths []string) ([]upload.Source, func(), error) {
	files := make([]*os.File, 0, len(paths))
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	sources := make([]upload.Source, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, errors.Wrapf(err, "failed to open image %s", path)
		}
		files = append(files, f)
		sources = append(sources, upload.Source{FileName: filepath.Base(path), Reader: f})
	}
	return sources, closeAll, nil
}

