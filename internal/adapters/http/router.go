package httpadapter

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/medinsight/insight-engine/internal/config"
	"github.com/medinsight/insight-engine/internal/core/domain"
	"github.com/medinsight/insight-engine/internal/core/ports"
	"github.com/medinsight/insight-engine/internal/observability/metrics"
)

const (
	actorHeader      = "X-Actor"
	anonymousActor   = "anonymous"
	multipartMemory  = 10 << 20
	metricsService   = "api"
)

type Router struct {
	ingestUC ports.DocumentIngestor
	readUC   ports.DocumentReader
	deleteUC ports.DocumentRemover
	metrics  *metrics.HTTPServerMetrics
	cfg      config.Config
}

func NewRouter(
	ingestUC ports.DocumentIngestor,
	readUC ports.DocumentReader,
	deleteUC ports.DocumentRemover,
	httpMetrics *metrics.HTTPServerMetrics,
	cfg config.Config,
) *Router {
	return &Router{
		ingestUC: ingestUC,
		readUC:   readUC,
		deleteUC: deleteUC,
		metrics:  httpMetrics,
		cfg:      cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/batch", rt.uploadBatch)
	mux.HandleFunc("/v1/documents/", rt.documentSubtree)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(metricsService, handler)
	}
	if rt.cfg.APIMaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, backpressureWait(rt.cfg))
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	receipt, err := rt.ingestUC.Upload(r.Context(), ports.UploadRequest{
		Filename:    fileHeader.Filename,
		Body:        file,
		PatientID:   r.FormValue("patient_id"),
		PatientName: r.FormValue("patient_name"),
		ReportType:  r.FormValue("report_type"),
		ReportDate:  r.FormValue("report_date"),
		Actor:       actorFrom(r),
	})
	if err != nil {
		rt.recordRejection(err)
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordUpload(metricsService, fileTypeOf(fileHeader.Filename), fileHeader.Size)
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (rt *Router) uploadBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart payload"})
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'files' is required"})
		return
	}

	reqs := make([]ports.UploadRequest, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, file := range opened {
			file.Close()
		}
	}()
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable multipart file"})
			return
		}
		opened = append(opened, file)
		reqs = append(reqs, ports.UploadRequest{
			Filename:    header.Filename,
			Body:        file,
			PatientID:   r.FormValue("patient_id"),
			PatientName: r.FormValue("patient_name"),
			ReportType:  r.FormValue("report_type"),
			ReportDate:  r.FormValue("report_date"),
			Actor:       actorFrom(r),
		})
	}

	results, err := rt.ingestUC.UploadBatch(r.Context(), reqs)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		for i, result := range results {
			if result.DocumentID != "" {
				rt.metrics.RecordUpload(metricsService, fileTypeOf(result.Filename), headers[i].Size)
			}
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"results": results})
}

func (rt *Router) documentSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	if id, ok := strings.CutSuffix(rest, "/entities"); ok {
		rt.listEntities(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		rt.getDocument(w, r, rest)
	case http.MethodDelete:
		rt.deleteDocument(w, r, rest)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := rt.readUC.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) listEntities(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	entities, err := rt.readUC.ListEntities(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if entities == nil {
		entities = []domain.Entity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request, id string) {
	if err := rt.deleteUC.Delete(r.Context(), id, actorFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "document_id": id})
}

func (rt *Router) recordRejection(err error) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordRejection(metricsService, rejectionReason(err))
}

func actorFrom(r *http.Request) string {
	actor := strings.TrimSpace(r.Header.Get(actorHeader))
	if actor == "" {
		return anonymousActor
	}
	return actor
}

func fileTypeOf(filename string) string {
	if idx := strings.LastIndexByte(filename, '.'); idx >= 0 {
		return strings.ToLower(filename[idx+1:])
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
