package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
)

// MessageRequest is the transport-neutral inbound message
type MessageRequest struct {
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
}

type MessageResponse struct {
	Text string `json:"text"`
}

type SlotResponse struct {
	Department string    `json:"department"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Capacity   int       `json:"capacity"`
	Count      int       `json:"count"`
	Patients   []string  `json:"patients"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type PatientResponse struct {
	ID           string               `json:"id"`
	Registration booking.Registration `json:"registration"`
	CreatedAt    time.Time            `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s *booking.Slot) SlotResponse {
	patients := s.Patients
	if patients == nil {
		patients = []string{}
	}
	return SlotResponse{
		Department: s.Key.Department,
		Date:       s.Key.Date,
		Time:       s.Key.Time,
		Capacity:   s.Capacity,
		Count:      s.Count,
		Patients:   patients,
		UpdatedAt:  s.UpdatedAt,
	}
}

func toPatientResponse(p *booking.Patient) PatientResponse {
	return PatientResponse{
		ID:           p.ID,
		Registration: p.Registration,
		CreatedAt:    p.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
