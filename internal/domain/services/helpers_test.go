package services

import (
	"context"
	"sync"
	"time"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// steppingClock advances one second per call
func steppingClock() Clock {
	var mu sync.Mutex
	t := baseTime
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func testLogger() *logger.Logger {
	return logger.NewNop()
}

type alertOpt func(*models.RawAlert)

func withContext(industry, region string) alertOpt {
	return func(a *models.RawAlert) {
		a.RawData.Context = &models.AlertContext{Industry: industry, Region: region, Country: "USA", Continent: "North America"}
	}
}

func withDevice(hostname, os string) alertOpt {
	return func(a *models.RawAlert) {
		a.RawData.Device = &models.Device{Hostname: hostname, OS: os, Type: "Workstation", IPAddress: "10.0.0.5"}
	}
}

func withField(k string, v any) alertOpt {
	return func(a *models.RawAlert) { a.RawData.Fields[k] = v }
}

func withMitre(id string) alertOpt {
	return func(a *models.RawAlert) {
		a.MitreMapping = &models.MitreMapping{ID: id, Tactic: "Impact", Technique: "Data Encrypted for Impact"}
	}
}

func newAlert(id, title string, sev models.Severity, opts ...alertOpt) *models.RawAlert {
	a := &models.RawAlert{
		ID:        id,
		Timestamp: baseTime,
		Severity:  sev,
		Title:     title,
		RawData:   models.RawData{Fields: map[string]any{}},
	}
	withDevice("HOST-"+id, "Windows")(a)
	withContext("Technology", "NA-West")(a)
	for _, o := range opts {
		o(a)
	}
	return a
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ServerEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, e *models.ServerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *e)
	return p.err
}

func (p *recordingPublisher) Events() []models.ServerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ServerEvent(nil), p.events...)
}
