package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aurumlab/gsr-backend/internal/models"
	"github.com/aurumlab/gsr-backend/internal/normalize"
)

const maxUploadBytes = 10 << 20

type windowResponse struct {
	Rows        []models.PriceRecord `json:"rows"`
	FetchedDays int                  `json:"fetchedDays"`
	FetchError  string               `json:"fetchError,omitempty"`
}

type uploadResponse struct {
	Rows        int `json:"rows"`
	NewDates    int `json:"newDates"`
	DroppedRows int `json:"droppedRows"`
	TotalDates  int `json:"totalDates"`
}

func (s *Server) handlePricesWindow(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if !validateDate(start) || !validateDate(end) {
		writeError(w, http.StatusBadRequest, "start and end must be YYYY-MM-DD")
		return
	}

	res, err := s.assembler.LoadMergedPrices(r.Context(), start, end)
	if err != nil {
		if models.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		fmt.Printf("[API] Window %s..%s failed: %v\n", start, end, err)
		writeError(w, http.StatusInternalServerError, "failed to assemble prices")
		return
	}

	resp := windowResponse{Rows: res.Records, FetchedDays: res.FetchedDays}
	if resp.Rows == nil {
		resp.Rows = []models.PriceRecord{}
	}
	// A gap that could not be fetched still returns the data we have; the
	// client decides how loudly to complain.
	if res.FetchErr != nil {
		resp.FetchError = res.FetchErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePricesUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	name, data, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, dropped, err := parseUpload(name, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	added, total := s.assembler.ImportRecords(r.Context(), records)
	writeJSON(w, http.StatusOK, uploadResponse{
		Rows:        len(records),
		NewDates:    added,
		DroppedRows: dropped,
		TotalDates:  total,
	})
}

func (s *Server) handlePricesExport(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if !validateDate(start) || !validateDate(end) {
		writeError(w, http.StatusBadRequest, "start and end must be YYYY-MM-DD")
		return
	}

	records, err := s.assembler.CachedWindow(r.Context(), start, end)
	if err != nil {
		if models.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		fmt.Printf("[API] Export %s..%s failed: %v\n", start, end, err)
		writeError(w, http.StatusInternalServerError, "failed to export prices")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=gold-silver-%s-%s.csv", start, end))
	if err := normalize.WriteCSV(w, records); err != nil {
		fmt.Printf("[API] Export write failed: %v\n", err)
	}
}

// readUpload accepts either a multipart form with a "file" field or a raw
// body, and returns the client-side filename when one was given.
func readUpload(r *http.Request) (string, []byte, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("missing file field: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		return hdr.Filename, data, err
	}

	data, err := io.ReadAll(r.Body)
	return "", data, err
}

// parseUpload routes the payload to the right reader. Workbooks are zip
// containers, so the PK signature is a reliable tell when the filename
// doesn't say.
func parseUpload(name string, data []byte) ([]models.PriceRecord, int, error) {
	if strings.HasSuffix(strings.ToLower(name), ".xlsx") || bytes.HasPrefix(data, []byte("PK")) {
		return normalize.ReadWorkbook(bytes.NewReader(data))
	}
	return normalize.ReadCSV(bytes.NewReader(data))
}
