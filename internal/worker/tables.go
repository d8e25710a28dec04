package worker

import (
	"bytes"
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/argus-advisory/advisor-cli/internal/fetcher"
	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/table"
)

// fetchConcurrency bounds parallel blob downloads in the profile stage.
const fetchConcurrency = 4

// loadProjectTables downloads and parses every dataset of a project. The
// returned tables are ordered like the dataset list so concatenation is
// deterministic across runs.
func (w *Worker) loadProjectTables(ctx context.Context, projectID string) ([]model.Dataset, []*table.Table, error) {
	datasets, err := w.store.ListDatasets(ctx, projectID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "worker: list datasets for project %s", projectID)
	}
	if len(datasets) == 0 {
		return nil, nil, eris.Errorf("worker: project %s has no datasets", projectID)
	}

	tables := make([]*table.Table, len(datasets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for i, d := range datasets {
		g.Go(func() error {
			data, err := w.blobs.Download(gctx, d.BlobKey)
			if err != nil {
				return eris.Wrapf(err, "worker: download dataset %s", d.ID)
			}
			t, err := fetcher.LoadTable(d.Filename, bytes.NewReader(data), fetcher.CSVOptions{})
			if err != nil {
				return eris.Wrapf(err, "worker: parse dataset %s", d.ID)
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return datasets, tables, nil
}

// loadProjectTable is loadProjectTables concatenated into one table.
func (w *Worker) loadProjectTable(ctx context.Context, projectID string) (*table.Table, error) {
	_, tables, err := w.loadProjectTables(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return table.Concat(tables...), nil
}
