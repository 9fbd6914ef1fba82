package worker

// report_worker.go
// Processes closing-report jobs from QueueClosingReport: renders the
// reconciliation PDF for a closed session and emails it to the clinic's
// configured report address. This is the handoff point to downstream
// reporting — the persisted session fields remain the source of truth,
// the job carries only the session id.

import (
	"context"
	"encoding/json"

	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/infra"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/model"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ClosingReportJobPayload is the job envelope sent to QueueClosingReport.
type ClosingReportJobPayload struct {
	SessionID string `json:"session_id"`
}

type ClosingReportWorker struct {
	repo        repository.CashRepository
	mailer      *infra.Mailer
	storagePath string
	reportEmail string
}

func NewClosingReportWorker(repo repository.CashRepository, mailer *infra.Mailer, storagePath, reportEmail string) *ClosingReportWorker {
	return &ClosingReportWorker{
		repo:        repo,
		mailer:      mailer,
		storagePath: storagePath,
		reportEmail: reportEmail,
	}
}

// Process renders and delivers the closing report for one session.
func (w *ClosingReportWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload ClosingReportJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("report_worker: invalid payload")
		return
	}
	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", payload.SessionID).Msg("report_worker: invalid session id")
		return
	}

	s, err := w.repo.FindSessionWithOperations(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", payload.SessionID).Msg("report_worker: session lookup failed")
		return
	}
	if s.Status != model.SessionClosed {
		log.Warn().Str("session_id", payload.SessionID).Str("status", string(s.Status)).
			Msg("report_worker: session not closed — skipping report")
		return
	}

	pdfPath, err := infra.GenerateClosingReportPDF(s, s.Operations, w.storagePath)
	if err != nil {
		log.Error().Err(err).Str("session_id", payload.SessionID).Msg("report_worker: PDF generation failed")
		return
	}
	log.Info().Str("session_id", payload.SessionID).Str("pdf", pdfPath).Msg("report_worker: closing report generated")

	if w.reportEmail == "" {
		return
	}
	subject := "Daily cash report — " + s.BusinessDate
	body := "Attached is the cash drawer closing report for " + s.BusinessDate + "."
	if err := w.mailer.SendClosingReport(w.reportEmail, subject, body, pdfPath); err != nil {
		log.Error().Err(err).Str("to", w.reportEmail).Msg("report_worker: failed to send email")
		return
	}
	log.Info().Str("to", w.reportEmail).Str("session_id", payload.SessionID).Msg("report_worker: closing report sent")
}
