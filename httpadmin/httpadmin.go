// Package httpadmin is the read-only admin HTTP surface (spec §6's
// "small read-only admin API"): /status, /leases, /pools, /metrics.
// Routing follows the teacher's routes.Setup pattern over
// github.com/gorilla/mux; the Prometheus exposition handler comes from
// github.com/prometheus/client_golang/prometheus/promhttp.
package httpadmin

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dhcpd/internal/lease"
)

// Server exposes the admin API over the lease database and a
// Prometheus registerer.
type Server struct {
	DB         *lease.Database
	Registerer prometheus.Gatherer
	StartedAt  time.Time
}

// Router builds the mux.Router exposing /status, /leases, /pools, and
// /metrics, matching the teacher's Setup(router, handlers) shape.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/status", s.handleStatus).Methods("GET").Name("Status")
	router.HandleFunc("/leases", s.handleLeases).Methods("GET").Name("Leases")
	router.HandleFunc("/pools", s.handlePools).Methods("GET").Name("Pools")
	router.Handle("/metrics", promhttp.HandlerFor(s.Registerer, promhttp.HandlerOpts{})).Methods("GET").Name("Metrics")
	return router
}

type statusResponse struct {
	Uptime string `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{Uptime: time.Since(s.StartedAt).String()})
}

type leaseView struct {
	IP     string `json:"ip"`
	HWAddr string `json:"hw_addr"`
	State  string `json:"state"`
	Ends   string `json:"ends"`
}

func (s *Server) handleLeases(w http.ResponseWriter, r *http.Request) {
	leases := s.DB.All()
	views := make([]leaseView, 0, len(leases))
	for _, l := range leases {
		views = append(views, leaseView{
			IP:     ipString(l.IP),
			HWAddr: hexString(l.HWAddr),
			State:  l.State.String(),
			Ends:   l.Ends.Format(time.RFC3339),
		})
	}
	writeJSON(w, views)
}

type poolView struct {
	Name           string `json:"name"`
	Start          string `json:"start"`
	End            string `json:"end"`
	FreeCount      int    `json:"free_count"`
	InsertionPoint int    `json:"insertion_point"`
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	pools := s.DB.AllPools()
	views := make([]poolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, poolView{
			Name:           p.Name,
			Start:          ipString(p.Start),
			End:            ipString(p.End),
			FreeCount:      p.InsertionPoint,
			InsertionPoint: p.InsertionPoint,
		})
	}
	writeJSON(w, views)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func ipString(ip [4]byte) string {
	return net.IP(ip[:]).String()
}

func hexString(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*3)
	for i, c := range b {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hexDigits[c>>4], hexDigits[c&0xf])
	}
	return string(out)
}
