package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aurumlab/gsr-backend/internal/models"
	"github.com/aurumlab/gsr-backend/internal/strategy"
)

type simulateResponse struct {
	Points     []models.SimulationPoint `json:"points"`
	Switches   []models.SwitchEvent     `json:"switches"`
	FetchError string                   `json:"fetchError,omitempty"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var params models.StrategyParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !validateDate(params.StartDate) || !validateDate(params.EndDate) {
		writeError(w, http.StatusBadRequest, "startDate and endDate must be YYYY-MM-DD")
		return
	}

	res, err := s.assembler.LoadMergedPrices(r.Context(), params.StartDate, params.EndDate)
	if err != nil {
		if models.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		fmt.Printf("[API] Simulation window %s..%s failed: %v\n", params.StartDate, params.EndDate, err)
		writeError(w, http.StatusInternalServerError, "failed to assemble prices")
		return
	}

	out, err := strategy.Simulate(res.Records, params)
	if err != nil {
		if models.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "simulation failed")
		return
	}

	resp := simulateResponse{Points: out.Points, Switches: out.Switches}
	if resp.Switches == nil {
		resp.Switches = []models.SwitchEvent{}
	}
	if res.FetchErr != nil {
		resp.FetchError = res.FetchErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
