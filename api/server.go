// Package api exposes a thin read-only status surface over the trading loop.
// It reports cached adapter state only and never triggers a refresh itself,
// so it cannot interleave with the engine's explicit-refresh discipline.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dankeder/xbtarbiter/pkg/arbiter"
)

type Server struct {
	loop   *arbiter.Loop
	logger *logrus.Logger
	port   string
}

func NewServer(loop *arbiter.Loop, logger *logrus.Logger, port string) *Server {
	return &Server{
		loop:   loop,
		logger: logger,
		port:   port,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/balances", s.handleBalances)
	mux.HandleFunc("/api/opportunities", s.handleOpportunities)

	s.logger.Infof("Starting status API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

type balanceStatus struct {
	Market     string `json:"market"`
	BalanceXBT string `json:"balance_xbt"`
	BalanceUSD string `json:"balance_usd"`
	AvailXBT   string `json:"avail_xbt"`
	AvailUSD   string `json:"avail_usd"`
	TradeFee   string `json:"trade_fee_percent"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	markets := s.loop.Scanner().Markets()
	balances := make([]balanceStatus, 0, len(markets))
	for _, m := range markets {
		balances = append(balances, balanceStatus{
			Market:     m.Name(),
			BalanceXBT: m.BalanceXBT().StringFixed(8),
			BalanceUSD: m.BalanceUSD().StringFixed(5),
			AvailXBT:   m.AvailXBT().StringFixed(8),
			AvailUSD:   m.AvailUSD().StringFixed(5),
			TradeFee:   m.TradeFee().String(),
		})
	}
	s.writeJSON(w, http.StatusOK, balances)
}

type opportunityStatus struct {
	BidMarket string `json:"bid_market"`
	AskMarket string `json:"ask_market"`
	Volume    string `json:"volume"`
	BuyTotal  string `json:"buy_total"`
	SellTotal string `json:"sell_total"`
	Fees      string `json:"fees"`
	Profit    string `json:"profit"`
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	opps, scannedAt := s.loop.Opportunities()
	result := struct {
		ScannedAt     time.Time           `json:"scanned_at"`
		Opportunities []opportunityStatus `json:"opportunities"`
	}{
		ScannedAt:     scannedAt,
		Opportunities: make([]opportunityStatus, 0, len(opps)),
	}
	for _, opp := range opps {
		result.Opportunities = append(result.Opportunities, opportunityStatus{
			BidMarket: opp.BidMarket.Name(),
			AskMarket: opp.AskMarket.Name(),
			Volume:    opp.Volume.StringFixed(8),
			BuyTotal:  opp.BuyTotal.StringFixed(5),
			SellTotal: opp.SellTotal.StringFixed(5),
			Fees:      opp.Fees.StringFixed(5),
			Profit:    opp.Profit.StringFixed(5),
		})
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
