package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
	"github.com/hackgods/hospital-registration-agent/pkg/logging"
)

const maxMessageBytes = 64 << 10

// TurnHandler turns one inbound message into a reply
type TurnHandler interface {
	HandleTurn(ctx context.Context, senderID, text string) string
}

// RecordReader exposes stored slots and patients read-only
type RecordReader interface {
	GetSlot(ctx context.Context, key booking.SlotKey) (*booking.Slot, error)
	GetPatient(ctx context.Context, id string) (*booking.Patient, error)
}

func messageHandler(turns TurnHandler, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MessageRequest
		body := http.MaxBytesReader(w, r.Body, maxMessageBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		req.SenderID = strings.TrimSpace(req.SenderID)
		if req.SenderID == "" {
			writeError(w, http.StatusBadRequest, "invalid_sender_id", "sender_id is required")
			return
		}

		reply := turns.HandleTurn(r.Context(), req.SenderID, req.Text)
		logger.Debug("message handled",
			"request_id", GetRequestID(r.Context()),
			"sender", req.SenderID,
		)

		writeJSON(w, http.StatusOK, MessageResponse{Text: reply})
	}
}

func slotHandler(records RecordReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := booking.SlotKey{
			Department: chi.URLParam(r, "department"),
			Date:       chi.URLParam(r, "date"),
			Time:       chi.URLParam(r, "time"),
		}

		slot, err := records.GetSlot(r.Context(), key)
		if err != nil {
			if errors.Is(err, booking.ErrSlotNotFound) {
				writeError(w, http.StatusNotFound, "slot_not_found", key.String())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func patientHandler(records RecordReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := booking.ParsePatientID(id); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must look like P1001")
			return
		}

		p, err := records.GetPatient(r.Context(), id)
		if err != nil {
			if errors.Is(err, booking.ErrPatientNotFound) {
				writeError(w, http.StatusNotFound, "patient_not_found", id)
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toPatientResponse(p))
	}
}
