package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"studio/internal/domain"
)

const (
	downloadNameMaxLen  = 30
	downloadExtension   = ".jpg"
	downloadDefaultName = "image"
)

// DownloadJob streams a completed job's artifact back as a file attachment.
// The suggested filename is derived from the prompt text.
func (a *App) DownloadJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Store.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if job.Status != domain.JobStatusComplete || job.ResultURL == "" {
		a.error(w, http.StatusConflict, "not_ready", "job has no downloadable result")
		return
	}

	artifact, err := a.Gateway.Fetch(r.Context(), job.ResultURL)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", id).Msg("download: fetch artifact failed")
		a.error(w, http.StatusBadGateway, "fetch_failed", "could not retrieve the artifact")
		return
	}
	defer artifact.Body.Close()

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", DownloadFilename(job.Prompt)))
	if _, err := io.Copy(w, artifact.Body); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", id).Msg("download: stream interrupted")
	}
}

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// DownloadFilename derives a local filename from the prompt: diacritics are
// folded to their base letters, everything non-alphanumeric is stripped, the
// result is truncated to 30 runes and lower-cased, and the fixed image
// extension is appended.
func DownloadFilename(prompt string) string {
	folded, _, err := transform.String(diacriticFolder, prompt)
	if err != nil {
		folded = prompt
	}
	var b strings.Builder
	for _, r := range folded {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) > downloadNameMaxLen {
		name = name[:downloadNameMaxLen]
	}
	name = strings.ToLower(name)
	if name == "" {
		name = downloadDefaultName
	}
	return name + downloadExtension
}
