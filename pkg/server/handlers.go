package server

import (
	"errors"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ericogr/plura-monitor/pkg/sht4x"
	"github.com/ericogr/plura-monitor/pkg/store"
)

type voltageResponse struct {
	Voltage     int     `json:"voltage"`
	RawVBat     int     `json:"raw_vbat"`
	RawFC       int     `json:"raw_fc"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

type sensorStatus struct {
	Name     string `json:"name"`
	State    string `json:"state,omitempty"`
	Failures int    `json:"failures"`
	Degraded bool   `json:"degraded"`
}

type channelStatus struct {
	Channel store.ID `json:"channel"`
	Valid   bool     `json:"valid"`
	AgeMs   *int64   `json:"age_ms,omitempty"`
}

type statusResponse struct {
	Version  string          `json:"version,omitempty"`
	Scheme   string          `json:"calibration_scheme,omitempty"`
	Cycle    uint64          `json:"cycle"`
	Sensors  []sensorStatus  `json:"sensors"`
	Channels []channelStatus `json:"channels"`
}

func (s *Server) getDashboard(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", dashboardHTML)
}

// getVoltage keeps the flat response polled by the original dashboard.
// Missing entries report zero.
func (s *Server) getVoltage(c *gin.Context) {
	read := func(id store.ID) store.Reading {
		if id == "" {
			return store.Reading{}
		}
		r, _ := s.opts.Store.Read(id)
		return r
	}
	l := s.opts.Legacy
	c.JSON(http.StatusOK, voltageResponse{
		Voltage:     int(read(l.Voltage).Value),
		RawVBat:     read(l.RawVBat).Raw,
		RawFC:       read(l.RawFC).Raw,
		Temperature: round2(read(l.Temperature).Value),
		Humidity:    round2(read(l.Humidity).Value),
	})
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *Server) getReadings(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Store.ReadAll())
}

func (s *Server) getReading(c *gin.Context) {
	id := store.ID(c.Param("channel"))
	r, err := s.opts.Store.Read(id)
	if errors.Is(err, store.ErrUnknownChannel) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, store.Entry{ID: id, Reading: r})
}

func (s *Server) getStatus(c *gin.Context) {
	now := time.Now()
	resp := statusResponse{Version: s.opts.Version, Scheme: s.opts.Scheme, Sensors: []sensorStatus{}}
	for name, h := range s.opts.Health {
		r := h.Retry()
		st := sensorStatus{Name: name, Failures: r.Failures(), Degraded: r.Degraded()}
		if sr, ok := h.(interface{ State() sht4x.State }); ok {
			st.State = sr.State().String()
		}
		resp.Sensors = append(resp.Sensors, st)
	}
	sort.Slice(resp.Sensors, func(i, j int) bool { return resp.Sensors[i].Name < resp.Sensors[j].Name })
	for _, e := range s.opts.Store.ReadAll() {
		if e.Reading.Cycle > resp.Cycle {
			resp.Cycle = e.Reading.Cycle
		}
		cs := channelStatus{Channel: e.ID, Valid: e.Reading.Valid}
		if age, ok := s.opts.Store.Age(e.ID, now); ok {
			ms := age.Milliseconds()
			cs.AgeMs = &ms
		}
		resp.Channels = append(resp.Channels, cs)
	}
	c.JSON(http.StatusOK, resp)
}
