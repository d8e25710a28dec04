package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/argus-advisory/advisor-cli/internal/blob"
	"github.com/argus-advisory/advisor-cli/internal/fetcher"
	"github.com/argus-advisory/advisor-cli/internal/model"
)

var importProject string

var importCmd = &cobra.Command{
	Use:   "import <file | http(s)-url | ftp-url>",
	Short: "Upload a dataset into a project",
	Long:  "Reads a CSV or XLSX file from a local path, an HTTP(S) URL, or an FTP URL and stores it as a project dataset.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		source := args[0]

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		project, err := env.Store.GetProject(ctx, importProject)
		if err != nil {
			return err
		}
		if project == nil {
			return eris.Errorf("project %s not found", importProject)
		}

		filename, data, err := fetchSource(ctx, source)
		if err != nil {
			return err
		}

		dataset := model.NewDataset(project.ID, filename, "")
		dataset.BlobKey = blob.DatasetKey(project.ID, dataset.ID, filename)

		if err := env.Blobs.Upload(ctx, dataset.BlobKey, data, "application/octet-stream"); err != nil {
			return eris.Wrap(err, "upload dataset")
		}
		if err := env.Store.CreateDataset(ctx, dataset); err != nil {
			return eris.Wrap(err, "create dataset")
		}

		fmt.Printf("Imported %s (%d bytes) as dataset %s\n", filename, len(data), dataset.ID)
		return nil
	},
}

// fetchSource reads the dataset bytes from a local path, an HTTP(S) URL,
// or an FTP URL.
func fetchSource(ctx context.Context, source string) (filename string, data []byte, err error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 2 * time.Minute})
		rc, err := f.Download(ctx, source)
		if err != nil {
			return "", nil, err
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		if err != nil {
			return "", nil, eris.Wrap(err, "read download")
		}
		return sourceFilename(source), data, nil

	case strings.HasPrefix(source, "ftp://"):
		f := fetcher.NewFTPFetcher(fetcher.FTPOptions{})
		rc, err := f.Download(ctx, source)
		if err != nil {
			return "", nil, err
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		if err != nil {
			return "", nil, eris.Wrap(err, "read download")
		}
		return sourceFilename(source), data, nil

	default:
		data, err := os.ReadFile(source)
		if err != nil {
			return "", nil, eris.Wrapf(err, "read %s", source)
		}
		return path.Base(source), data, nil
	}
}

// sourceFilename extracts a usable filename from a URL path.
func sourceFilename(rawURL string) string {
	trimmed := strings.SplitN(rawURL, "?", 2)[0]
	name := path.Base(trimmed)
	if name == "" || name == "/" || name == "." {
		return "dataset.csv"
	}
	return name
}

func init() {
	importCmd.Flags().StringVar(&importProject, "project", "", "project id (required)")
	_ = importCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(importCmd)
}
