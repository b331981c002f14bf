package display

import (
	"sync"
	"testing"
	"time"
)

func TestBoard_UpdateBumpsVersion(t *testing.T) {
	b := NewBoard(View{Status: "Connected"})

	b.Update(func(v *View) {
		v.Temperature = "21.5"
		v.Mode = "SIM"
	})

	got := b.View()
	if got.Temperature != "21.5" || got.Mode != "SIM" || got.Status != "Connected" {
		t.Fatalf("unexpected view: %+v", got)
	}
	if got.Version != 1 {
		t.Fatalf("version = %d, want 1", got.Version)
	}
}

func TestBoard_SubscribeGetsCurrentThenChanges(t *testing.T) {
	b := NewBoard(View{Status: "Connected"})
	ch, cancel := b.Subscribe()
	defer cancel()

	first := <-ch
	if first.Status != "Connected" || first.Version != 0 {
		t.Fatalf("unexpected first view: %+v", first)
	}

	b.Update(func(v *View) { v.Heater = "active" })
	select {
	case v := <-ch:
		if v.Heater != "active" || v.Version != 1 {
			t.Fatalf("unexpected view: %+v", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("no view after update")
	}
}

func TestBoard_SlowSubscriberSeesLatest(t *testing.T) {
	b := NewBoard(View{})
	ch, cancel := b.Subscribe()
	defer cancel()
	<-ch

	for i := 0; i < 5; i++ {
		b.Update(func(v *View) { v.SliderValue++ })
	}

	v := <-ch
	if v.SliderValue != 5 || v.Version != 5 {
		t.Fatalf("expected latest view, got %+v", v)
	}
	select {
	case extra := <-ch:
		t.Fatalf("stale view left in channel: %+v", extra)
	default:
	}
}

func TestBoard_CancelClosesChannel(t *testing.T) {
	b := NewBoard(View{})
	ch, cancel := b.Subscribe()
	<-ch
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}
	// updates after cancel must not panic
	b.Update(func(v *View) { v.Mode = "SIM" })
}

// Readers never see the temperature and setpoint slots out of step.
func TestBoard_UpdateIsAtomic(t *testing.T) {
	b := NewBoard(View{Temperature: "0", Setpoint: "0"})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			v := b.View()
			if v.Temperature != v.Setpoint {
				t.Errorf("torn view: %+v", v)
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		s := string(rune('a' + i%26))
		b.Update(func(v *View) {
			v.Temperature = s
			v.Setpoint = s
		})
	}
	close(stop)
	wg.Wait()
}
