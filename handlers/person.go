package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/attendancesys/database"
	"github.com/camden-git/attendancesys/models"
	"github.com/camden-git/attendancesys/repository"
	"github.com/camden-git/attendancesys/services"
)

const maxUploadSize = 10 << 20

type PersonHandler struct {
	Persons      repository.PersonRepositoryInterface
	Registration *services.RegistrationService
	DB           database.Querier
}

// registrationStatus maps registration errors onto HTTP statuses.
func registrationStatus(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrPersonExists):
		return http.StatusConflict, "person_exists"
	case errors.Is(err, repository.ErrPersonNotFound):
		return http.StatusNotFound, "person_not_found"
	case errors.Is(err, services.ErrNoFace), errors.Is(err, services.ErrMultipleFaces), errors.Is(err, services.ErrNoEmbedding):
		return http.StatusUnprocessableEntity, "face_rejected"
	case errors.Is(err, services.ErrInvalidPersonID), errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrInvalidShift), errors.Is(err, services.ErrEmptyName):
		return http.StatusBadRequest, "validation_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeRegistrationError(w http.ResponseWriter, r *http.Request, err error, action string) {
	status, code := registrationStatus(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("Error %s: %v", action, err)
		detail = "Failed " + action
	}
	WriteAPIError(w, r, status, code, detail)
}

// ListPersons returns every person, or those matching ?q= by name or ID.
func (ph *PersonHandler) ListPersons(w http.ResponseWriter, r *http.Request) {
	var people []models.Person
	var err error
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		people, err = ph.Persons.Search(q)
	} else {
		people, err = ph.Persons.ListAll()
	}
	if err != nil {
		log.Printf("Error listing persons: %v", err)
		WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Failed to retrieve persons")
		return
	}
	if people == nil {
		people = []models.Person{}
	}
	writeJSON(w, http.StatusOK, people)
}

// CreatePerson registers a person from a multipart form with an "image" file.
func (ph *PersonHandler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		WriteAPIError(w, r, http.StatusBadRequest, "invalid_form", "Invalid multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		WriteAPIError(w, r, http.StatusBadRequest, "missing_image", "Missing required file: image")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		WriteAPIError(w, r, http.StatusBadRequest, "invalid_image", "Failed to read image")
		return
	}

	req := services.RegisterRequest{
		PersonID:   strings.TrimSpace(r.FormValue("person_id")),
		Name:       r.FormValue("name"),
		Email:      strings.TrimSpace(r.FormValue("email")),
		Department: strings.TrimSpace(r.FormValue("department")),
		ShiftStart: strings.TrimSpace(r.FormValue("shift_start")),
		ShiftEnd:   strings.TrimSpace(r.FormValue("shift_end")),
	}
	person, err := ph.Registration.Register(r.Context(), req, data)
	if err != nil {
		writeRegistrationError(w, r, err, "registering person")
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

func (ph *PersonHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	person, err := ph.Persons.GetByID(chi.URLParam(r, "person_id"))
	if err != nil {
		writeRegistrationError(w, r, err, "retrieving person")
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (ph *PersonHandler) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       *string `json:"name"`
		Email      *string `json:"email"`
		Department *string `json:"department"`
		ShiftStart *string `json:"shift_start"`
		ShiftEnd   *string `json:"shift_end"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, r, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}

	person, err := ph.Registration.Update(chi.URLParam(r, "person_id"), repository.PersonUpdate{
		Name:       req.Name,
		Email:      req.Email,
		Department: req.Department,
		ShiftStart: req.ShiftStart,
		ShiftEnd:   req.ShiftEnd,
	})
	if err != nil {
		writeRegistrationError(w, r, err, "updating person")
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (ph *PersonHandler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	if err := ph.Registration.Delete(chi.URLParam(r, "person_id")); err != nil {
		writeRegistrationError(w, r, err, "deleting person")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ph *PersonHandler) GetPersonStats(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "person_id")
	stats, found, err := database.GetPersonStats(r.Context(), ph.DB, personID)
	if err != nil {
		log.Printf("Error computing stats for %s: %v", personID, err)
		WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Failed to compute person stats")
		return
	}
	if !found {
		WriteAPIError(w, r, http.StatusNotFound, "person_not_found", repository.ErrPersonNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
