package jobs

import "testing"

func TestRegisterRejectsBadCron(t *testing.T) {
	s, err := NewScheduler()
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}
	defer s.Stop()

	if err := s.Register("bad", "not a cron", func() {}); err == nil {
		t.Error("expected error for invalid cron expression")
	}
	if err := s.Register("nightly", "0 2 * * *", func() {}); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
}
