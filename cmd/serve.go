package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/blob"
	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/worker"
	"github.com/argus-advisory/advisor-cli/pkg/advisor"
)

// maxUploadBytes caps dataset uploads at 100 MB.
const maxUploadBytes = 100 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newServeMux(env),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newServeMux builds the API routes over an initialized environment.
func newServeMux(env *appEnv) *http.ServeMux {
	approvals := worker.NewApprovals(env.Store, env.Queue)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /projects", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name                string `json:"name"`
			BusinessDescription string `json:"business_description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		project := model.NewProject(req.Name, req.BusinessDescription)
		if err := env.Store.CreateProject(r.Context(), project); err != nil {
			serverError(w, "create project", err)
			return
		}
		writeJSON(w, http.StatusCreated, project)
	})

	mux.HandleFunc("GET /projects", func(w http.ResponseWriter, r *http.Request) {
		projects, err := env.Store.ListProjects(r.Context())
		if err != nil {
			serverError(w, "list projects", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	})

	mux.HandleFunc("GET /projects/{id}", func(w http.ResponseWriter, r *http.Request) {
		project, err := env.Store.GetProject(r.Context(), r.PathValue("id"))
		if err != nil {
			serverError(w, "get project", err)
			return
		}
		if project == nil {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeJSON(w, http.StatusOK, project)
	})

	mux.HandleFunc("POST /projects/{id}/datasets", func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("id")
		project, err := env.Store.GetProject(r.Context(), projectID)
		if err != nil {
			serverError(w, "get project", err)
			return
		}
		if project == nil {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "expected multipart form with a file field")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			serverError(w, "read upload", err)
			return
		}

		dataset := model.NewDataset(projectID, header.Filename, "")
		dataset.BlobKey = blob.DatasetKey(projectID, dataset.ID, header.Filename)

		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := env.Blobs.Upload(r.Context(), dataset.BlobKey, data, contentType); err != nil {
			serverError(w, "upload dataset", err)
			return
		}
		if err := env.Store.CreateDataset(r.Context(), dataset); err != nil {
			serverError(w, "create dataset", err)
			return
		}
		writeJSON(w, http.StatusCreated, dataset)
	})

	mux.HandleFunc("GET /projects/{id}/datasets", func(w http.ResponseWriter, r *http.Request) {
		datasets, err := env.Store.ListDatasets(r.Context(), r.PathValue("id"))
		if err != nil {
			serverError(w, "list datasets", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"datasets": datasets})
	})

	mux.HandleFunc("GET /datasets/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		dataset, err := env.Store.GetDataset(r.Context(), r.PathValue("id"))
		if err != nil {
			serverError(w, "get dataset", err)
			return
		}
		if dataset == nil {
			writeError(w, http.StatusNotFound, "dataset not found")
			return
		}

		// S3-backed storage hands out a presigned URL instead of proxying
		// the bytes.
		if s3, ok := env.Blobs.(*blob.S3Storage); ok {
			url, err := s3.PresignGet(r.Context(), dataset.BlobKey, 15*time.Minute)
			if err != nil {
				serverError(w, "presign dataset", err)
				return
			}
			http.Redirect(w, r, url, http.StatusTemporaryRedirect)
			return
		}

		data, err := env.Blobs.Download(r.Context(), dataset.BlobKey)
		if err != nil {
			serverError(w, "download dataset", err)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dataset.Filename))
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	})

	mux.HandleFunc("POST /projects/{id}/jobs", func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("id")
		project, err := env.Store.GetProject(r.Context(), projectID)
		if err != nil {
			serverError(w, "get project", err)
			return
		}
		if project == nil {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}

		var req struct {
			Stage model.JobStage `json:"stage"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Stage == "" {
			req.Stage = model.StageProfile
		}
		switch req.Stage {
		case model.StageProfile, model.StageGenerateKPIs, model.StageComputeKPIs, model.StageGenerateReport:
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", req.Stage))
			return
		}

		job, err := enqueueJob(r.Context(), env, projectID, req.Stage)
		if err != nil {
			serverError(w, "enqueue job", err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	})

	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, err := env.Store.GetJob(r.Context(), r.PathValue("id"))
		if err != nil {
			serverError(w, "get job", err)
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	mux.HandleFunc("GET /projects/{id}/kpis", func(w http.ResponseWriter, r *http.Request) {
		status := model.KPIStatus(r.URL.Query().Get("status"))
		kpis, err := env.Store.ListKPIs(r.Context(), r.PathValue("id"), status)
		if err != nil {
			serverError(w, "list kpis", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"kpis": kpis})
	})

	mux.HandleFunc("POST /projects/{id}/kpis/approvals", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Decisions map[string]model.KPIStatus `json:"decisions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := approvals.ApproveKPIs(r.Context(), r.PathValue("id"), req.Decisions)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("POST /projects/{id}/kpis/custom", func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("id")
		project, err := env.Store.GetProject(r.Context(), projectID)
		if err != nil {
			serverError(w, "get project", err)
			return
		}
		if project == nil {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}

		var req struct {
			Request string `json:"request"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Request == "" {
			writeError(w, http.StatusBadRequest, "request field is required")
			return
		}

		profile, ok, err := combinedProfile(r, env, projectID)
		if err != nil {
			serverError(w, "load profiles", err)
			return
		}
		if !ok {
			writeError(w, http.StatusConflict, "project has not been profiled yet")
			return
		}

		proposal, err := env.Advisor.ProposeCustomKPI(r.Context(), advisor.ProjectContext{
			Name:                project.Name,
			BusinessDescription: project.BusinessDescription,
			Profile:             profile,
		}, req.Request)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		kpi := model.NewKPI(projectID, *proposal)
		if err := env.Store.CreateKPI(r.Context(), kpi); err != nil {
			serverError(w, "create kpi", err)
			return
		}
		writeJSON(w, http.StatusCreated, kpi)
	})

	mux.HandleFunc("GET /projects/{id}/reports/latest", func(w http.ResponseWriter, r *http.Request) {
		report, err := env.Store.LatestReport(r.Context(), r.PathValue("id"))
		if err != nil {
			serverError(w, "get latest report", err)
			return
		}
		if report == nil {
			writeError(w, http.StatusNotFound, "no report yet")
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	mux.HandleFunc("GET /reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		report, err := env.Store.GetReport(r.Context(), r.PathValue("id"))
		if err != nil {
			serverError(w, "get report", err)
			return
		}
		if report == nil {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	mux.HandleFunc("POST /reports/{id}/recommendations/approvals", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Decisions map[string]bool `json:"decisions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		decisions := make(map[int]bool, len(req.Decisions))
		for key, approved := range req.Decisions {
			idx, err := strconv.Atoi(key)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("decision key %q is not an index", key))
				return
			}
			decisions[idx] = approved
		}

		report, err := approvals.ApproveRecommendations(r.Context(), r.PathValue("id"), decisions)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return mux
}

// enqueueJob creates a queued job record and its queue message.
func enqueueJob(ctx context.Context, env *appEnv, projectID string, stage model.JobStage) (*model.Job, error) {
	job := model.NewJob(projectID, stage)
	if err := env.Store.CreateJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "create job")
	}
	if err := env.Queue.Enqueue(ctx, model.JobMessage{
		JobID:     job.ID,
		ProjectID: job.ProjectID,
		Stage:     job.Stage,
	}); err != nil {
		return nil, eris.Wrap(err, "enqueue job")
	}
	return &job, nil
}

// combinedProfile merges the stored per-dataset profiles into one profile
// for prompting. It reports false when no dataset has been profiled yet.
func combinedProfile(r *http.Request, env *appEnv, projectID string) (model.DatasetProfile, bool, error) {
	datasets, err := env.Store.ListDatasets(r.Context(), projectID)
	if err != nil {
		return model.DatasetProfile{}, false, err
	}

	var merged model.DatasetProfile
	seen := make(map[string]bool)
	found := false
	for _, d := range datasets {
		if d.Profile == nil {
			continue
		}
		found = true
		merged.RowCount += d.Profile.RowCount
		for _, c := range d.Profile.Columns {
			if seen[c.Name] {
				continue
			}
			seen[c.Name] = true
			merged.Columns = append(merged.Columns, c)
			if c.IsDate {
				merged.DateColumns = append(merged.DateColumns, c.Name)
			}
			if c.IsID {
				merged.PotentialJoinKeys = append(merged.PotentialJoinKeys, c.Name)
			}
		}
	}
	merged.ColumnCount = len(merged.Columns)
	return merged, found, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serverError(w http.ResponseWriter, action string, err error) {
	zap.L().Error("serve: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
