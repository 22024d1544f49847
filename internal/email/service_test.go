package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func sampleSummary() RunSummary {
	return RunSummary{
		RunID:     "run_1",
		Period:    "2026-01",
		CreatedBy: "Nur Aisyah",
		Categories: []CategoryCount{
			{Title: "Perancangan", Rows: 3},
			{Title: "Ulasan Teknikal", Rows: 2},
		},
		Pending:    9,
		Suppressed: 1,
		Link:       "https://lampiran.example/runs/run_1",
	}
}

func TestRenderRunSummaryTemplate(t *testing.T) {
	html, err := renderTemplate(runSummaryTemplate, sampleSummary())
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}
	for _, want := range []string{"Lampiran G 2026-01", "Nur Aisyah", "Ulasan Teknikal", ">5<", "https://lampiran.example/runs/run_1"} {
		if !strings.Contains(html, want) {
			t.Errorf("template should contain %q", want)
		}
	}
}

func TestSendRunSummary(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "osc@example.com", FromName: "OSC"})
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	svc.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}

	if err := svc.SendRunSummary([]string{"a@example.com", "b@example.com"}, sampleSummary()); err != nil {
		t.Fatalf("SendRunSummary failed: %v", err)
	}
	if gotAddr != "smtp.example.com:587" || len(gotTo) != 2 {
		t.Fatalf("unexpected envelope %s %v", gotAddr, gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{
		"Subject: Lampiran G 2026-01: 5 rekod\r\n",
		"From: OSC <osc@example.com>\r\n",
		"To: a@example.com, b@example.com\r\n",
		"1. Perancangan: 3",
		"Jumlah: 5 (belum diputuskan 9, ditapis agenda 1)",
		"--boundary-lampiran--",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendRunSummaryRequiresConfig(t *testing.T) {
	if err := NewService(Config{}).SendRunSummary([]string{"a@example.com"}, sampleSummary()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendRunSummaryWithoutRecipients(t *testing.T) {
	svc := NewService(Config{Host: "h", Port: "25", From: "f@example.com"})
	svc.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("nothing must be sent without recipients")
		return nil
	}
	if err := svc.SendRunSummary(nil, sampleSummary()); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
