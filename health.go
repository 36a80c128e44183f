package ztmdepartures

import (
	"encoding/json"
	"net/http"
)

type healthSubscription struct {
	Name             string `json:"name"`
	HasData          bool   `json:"has_data"`
	LastSuccessEpoch int64  `json:"last_success_epoch"`
}

type healthResponse struct {
	Status        string               `json:"status"`
	Subscriptions []healthSubscription `json:"subscriptions"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := healthResponse{Status: "ok"}
	for _, h := range registry {
		sub := healthSubscription{Name: h.Name()}
		if ts, ok := h.LastSuccess(); ok {
			sub.HasData = true
			sub.LastSuccessEpoch = ts.Unix()
		}
		resp.Subscriptions = append(resp.Subscriptions, sub)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
